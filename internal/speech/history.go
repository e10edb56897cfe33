package speech

// HistorySize is how many provider request ids are carried forward.
const HistorySize = 3

// History is the rolling window of the most recent provider request ids. It
// is threaded explicitly through sequential conversion loops.
type History struct {
	ids []string
}

// Add records a request id, dropping the oldest beyond HistorySize. Empty ids
// are ignored.
func (h *History) Add(id string) {
	if h == nil || id == "" {
		return
	}
	h.ids = append(h.ids, id)
	if len(h.ids) > HistorySize {
		h.ids = h.ids[len(h.ids)-HistorySize:]
	}
}

// IDs returns a copy of the window, oldest first.
func (h *History) IDs() []string {
	if h == nil || len(h.ids) == 0 {
		return nil
	}
	out := make([]string, len(h.ids))
	copy(out, h.ids)
	return out
}
