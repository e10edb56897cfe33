package ingestion

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"lectern/internal/content"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// jobNamespace seeds the deterministic job ids.
var jobNamespace = uuid.MustParse("6f1c0a52-7d1e-4b8a-9a53-2c5de5f0b7a4")

// GraphOptions selects voice, provider and sections for a graph.
type GraphOptions struct {
	VoiceID  string
	Provider string
	Model    string
	Sections []int
}

// Graph is the full job set for one book ingestion.
type Graph struct {
	Jobs         []queue.JobSpec
	Sections     []content.NavItem
	UsedFallback bool
}

// JobID returns the deterministic id of a job.
func JobID(bookID, voiceID string, jobType queue.JobType, key string) string {
	name := bookID + "\x00" + voiceID + "\x00" + string(jobType) + "\x00" + key
	return uuid.NewSHA1(jobNamespace, []byte(name)).String()
}

// SelectSections returns the sections to narrate, ordered by section order.
// Body matter qualifies; when the book has none every section qualifies and
// usedFallback is true. A non-empty selection then narrows the set and must
// only name qualifying sections.
func SelectSections(book content.Book, selection []int) (sections []content.NavItem, usedFallback bool, err error) {
	for _, item := range book.Navigation {
		if item.IsBody() {
			sections = append(sections, item)
		}
	}
	if len(sections) == 0 {
		sections = append(sections, book.Navigation...)
		usedFallback = true
	}
	slices.SortStableFunc(sections, func(a, b content.NavItem) int { return a.Order - b.Order })

	if len(selection) > 0 {
		wanted := make(map[int]bool, len(selection))
		for _, order := range selection {
			wanted[order] = true
		}
		var narrowed []content.NavItem
		for _, item := range sections {
			if wanted[item.Order] {
				narrowed = append(narrowed, item)
				delete(wanted, item.Order)
			}
		}
		if len(wanted) > 0 {
			missing := make([]int, 0, len(wanted))
			for order := range wanted {
				missing = append(missing, order)
			}
			slices.Sort(missing)
			return nil, usedFallback, services.Wrap(services.ErrValidation, "ingestion", "select sections",
				fmt.Sprintf("sections %v are not narratable in book %s", missing, book.ID), nil)
		}
		sections = narrowed
	}
	if len(sections) == 0 {
		return nil, usedFallback, services.Wrap(services.ErrValidation, "ingestion", "select sections",
			fmt.Sprintf("book %s has no sections", book.ID), nil)
	}
	return sections, usedFallback, nil
}

// BuildGraph builds the job graph for book. blocks holds the flattened
// blocks of every selected section keyed by section order.
func BuildGraph(book content.Book, blocks map[int][]content.Block, opts GraphOptions) (Graph, error) {
	sections, usedFallback, err := SelectSections(book, opts.Sections)
	if err != nil {
		return Graph{}, err
	}
	if opts.VoiceID == "" || opts.Provider == "" {
		return Graph{}, services.Wrap(services.ErrValidation, "ingestion", "build graph", "voice and provider are required", nil)
	}
	graph := Graph{Sections: sections, UsedFallback: usedFallback}
	id := func(jobType queue.JobType, key string) string {
		return JobID(book.ID, opts.VoiceID, jobType, key)
	}

	sectionJobs := make([]string, 0, len(sections))
	orders := make([]int, 0, len(sections))
	for _, section := range sections {
		var blockJobs []string
		for _, block := range content.TextBlocks(blocks[section.Order]) {
			jobID := id(queue.JobTextToAudio, strconv.Itoa(section.Order)+"/"+block.ID)
			blockJobs = append(blockJobs, jobID)
			graph.Jobs = append(graph.Jobs, queue.JobSpec{
				ID:     jobID,
				BookID: book.ID,
				Type:   queue.JobTextToAudio,
				Payload: queue.TextToAudioPayload{
					BookID:       book.ID,
					VoiceID:      opts.VoiceID,
					Provider:     opts.Provider,
					Model:        opts.Model,
					SectionOrder: section.Order,
					BlockID:      block.ID,
					BlockIndex:   block.Index,
				},
			})
		}
		sectionID := id(queue.JobSectionConcat, strconv.Itoa(section.Order))
		sectionJobs = append(sectionJobs, sectionID)
		orders = append(orders, section.Order)
		graph.Jobs = append(graph.Jobs, queue.JobSpec{
			ID:     sectionID,
			BookID: book.ID,
			Type:   queue.JobSectionConcat,
			Payload: queue.SectionConcatPayload{
				BookID:       book.ID,
				VoiceID:      opts.VoiceID,
				Provider:     opts.Provider,
				Model:        opts.Model,
				SectionOrder: section.Order,
				Label:        section.Label,
			},
			Dependencies: blockJobs,
		})
	}

	summaryID := id(queue.JobBookSummary, "")
	embeddingID := id(queue.JobSummaryEmbedding, "")
	graph.Jobs = append(graph.Jobs,
		queue.JobSpec{
			ID:      summaryID,
			BookID:  book.ID,
			Type:    queue.JobBookSummary,
			Payload: queue.BookSummaryPayload{BookID: book.ID},
		},
		queue.JobSpec{
			ID:           embeddingID,
			BookID:       book.ID,
			Type:         queue.JobSummaryEmbedding,
			Payload:      queue.SummaryEmbeddingPayload{BookID: book.ID},
			Dependencies: []string{summaryID},
		},
		queue.JobSpec{
			ID:           id(queue.JobBookMeta, ""),
			BookID:       book.ID,
			Type:         queue.JobBookMeta,
			Payload:      queue.BookMetaPayload{BookID: book.ID, VoiceID: opts.VoiceID, SectionOrders: orders},
			Dependencies: append(sectionJobs, embeddingID),
		},
	)
	return graph, nil
}
