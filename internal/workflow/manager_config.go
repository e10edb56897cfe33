package workflow

import (
	"maps"

	"lectern/internal/queue"
	"lectern/internal/stage"
)

// ConfigureHandlers registers the handler for each job type. Nil handlers are
// ignored; a job whose type has no handler fails when claimed.
func (m *Manager) ConfigureHandlers(handlers map[queue.JobType]stage.Handler) {
	registered := make(map[queue.JobType]stage.Handler, len(handlers))
	for jobType, handler := range handlers {
		if handler != nil {
			registered[jobType] = handler
		}
	}
	m.mu.Lock()
	m.handlers = registered
	m.mu.Unlock()
}

func (m *Manager) handlerFor(jobType queue.JobType) (stage.Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.handlers[jobType]
	return handler, ok
}

func (m *Manager) handlerSnapshot() map[queue.JobType]stage.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.handlers)
}
