package memory

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager sequences retrieval against the background write that
// post-processes the previous interaction. At most one write is in
// flight; retrieval waits for it so a reply never plans against memory
// that is about to change under it.
type Manager struct {
	mu       sync.Mutex
	inFlight chan struct{} // closed when the current write finishes
	lastUsed map[string]bool

	searcher *Searcher
	writer   *Writer
	logger   *logrus.Logger
}

func NewManager(searcher *Searcher, writer *Writer, logger *logrus.Logger) *Manager {
	return &Manager{
		searcher: searcher,
		writer:   writer,
		lastUsed: make(map[string]bool),
		logger:   logger,
	}
}

// join blocks until no write is in flight.
func (m *Manager) join() {
	for {
		m.mu.Lock()
		handle := m.inFlight
		if handle == nil {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		<-handle
	}
}

// GetKnowledge retrieves memory snippets for the user's input. The IDs
// of the documents used are remembered for the next write pass.
func (m *Manager) GetKnowledge(ctx context.Context, input string, history []string) []string {
	m.join()
	snippets, usedIDs := m.searcher.Search(ctx, input, history)
	m.mu.Lock()
	m.lastUsed = usedIDs
	m.mu.Unlock()
	return snippets
}

// PostProcessInteraction runs the write plan for the finished
// interaction in the background. A previous write still in flight is
// joined first, so writes apply in interaction order.
func (m *Manager) PostProcessInteraction(history []string) {
	m.join()
	m.mu.Lock()
	used := m.lastUsed
	done := make(chan struct{})
	m.inFlight = done
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.inFlight = nil
			m.mu.Unlock()
			close(done)
		}()
		if err := m.writer.ProcessInteraction(context.Background(), history, used); err != nil {
			m.logger.WithError(err).Warn("memory: post-processing failed")
		}
	}()
}

// Wait blocks until any in-flight write completes. Call on shutdown.
func (m *Manager) Wait() { m.join() }
