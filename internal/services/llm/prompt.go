package llm

// BookSummaryPrompt instructs the model to return a JSON summary object.
const BookSummaryPrompt = `You summarise books for an audiobook catalogue.
You receive the title, the author and the opening text of a book.
Write a neutral summary of at most 120 words that describes the subject and
tone without spoiling the ending. Respond with JSON only, in the form
{"summary": "<text>"}.`
