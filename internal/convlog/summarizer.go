package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/pkg/types"
)

// DefaultSummary is the sentinel summary before any compaction has run.
const DefaultSummary = "no earlier messages"

// SummarizerOptions bounds the raw context window and the compaction output.
type SummarizerOptions struct {
	// RawContextLimit is the raw-item count above which a compaction is
	// triggered.
	RawContextLimit int

	// RetainCount is how many raw items survive a compaction.
	RetainCount int

	// ForgetDays hints to the model how quickly stale detail should decay.
	ForgetDays int
}

func (o *SummarizerOptions) applyDefaults() {
	if o.RawContextLimit <= 0 {
		o.RawContextLimit = 20
	}
	if o.RetainCount <= 0 {
		o.RetainCount = 5
	}
	if o.ForgetDays <= 0 {
		o.ForgetDays = 30
	}
}

// contextState is the persisted shape of context.json. Summary and context
// are always written together so a reader never observes one updated without
// the other.
type contextState struct {
	Summary string                   `json:"summary"`
	Context []types.ConversationItem `json:"context"`
}

// Summarizer keeps a bounded "recent raw + rolling summary" view of the
// conversation. Compaction runs on a single background worker, at most one
// in flight; Context blocks until an in-flight compaction completes so
// readers always see the post-compaction state.
type Summarizer struct {
	path   string
	opts   SummarizerOptions
	gen    llm.TextGenerator
	logger *logrus.Logger

	mu       sync.Mutex
	state    contextState
	inFlight chan struct{} // closed when the running compaction finishes; nil when idle
}

// NewSummarizer loads the persisted context state from path. Missing or
// corrupt state degrades to the default summary with an empty window.
func NewSummarizer(path string, opts SummarizerOptions, gen llm.TextGenerator, logger *logrus.Logger) *Summarizer {
	opts.applyDefaults()
	s := &Summarizer{
		path:   path,
		opts:   opts,
		gen:    gen,
		logger: logger,
		state:  contextState{Summary: DefaultSummary},
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		logger.WithError(err).Warn("convlog: reading context state, starting empty")
	default:
		var st contextState
		if err := json.Unmarshal(data, &st); err != nil {
			logger.WithError(err).Warn("convlog: corrupt context state, starting empty")
		} else {
			if st.Summary == "" {
				st.Summary = DefaultSummary
			}
			s.state = st
		}
	}
	return s
}

// Observe adds a freshly appended item to the raw context window. When the
// window exceeds its limit and no compaction is already running, a background
// compaction is started; otherwise the state is persisted synchronously.
func (s *Summarizer) Observe(item types.ConversationItem) {
	s.mu.Lock()
	s.state.Context = append(s.state.Context, item)
	needCompact := len(s.state.Context) > s.opts.RawContextLimit && s.inFlight == nil
	if !needCompact {
		if err := s.persistLocked(); err != nil {
			s.logger.WithError(err).Warn("convlog: persisting context state")
		}
		s.mu.Unlock()
		return
	}

	done := make(chan struct{})
	s.inFlight = done
	summary := s.state.Summary
	items := make([]types.ConversationItem, len(s.state.Context))
	copy(items, s.state.Context)
	s.mu.Unlock()

	go s.compact(done, summary, items)
}

// compact folds the snapshot of raw items into the summary. A model failure
// leaves the previous summary and window untouched.
func (s *Summarizer) compact(done chan struct{}, summary string, items []types.ConversationItem) {
	defer func() {
		s.mu.Lock()
		s.inFlight = nil
		s.mu.Unlock()
		close(done)
	}()

	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = item.ContextLine()
	}
	newSummary, err := s.gen.Complete(context.Background(), llm.SummaryPrompt(summary, lines, s.opts.ForgetDays))
	if err != nil {
		s.logger.WithError(err).Error("convlog: summarization failed, keeping previous context")
		return
	}
	newSummary = strings.TrimSpace(newSummary)
	if newSummary == "" {
		s.logger.Warn("convlog: empty summary from model, keeping previous context")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Summary = newSummary
	if len(s.state.Context) > s.opts.RetainCount {
		s.state.Context = s.state.Context[len(s.state.Context)-s.opts.RetainCount:]
	}
	if err := s.persistLocked(); err != nil {
		s.logger.WithError(err).Warn("convlog: persisting compacted context")
	}
}

// Context returns the rolling summary followed by the raw recent items as
// timestamped lines. If a compaction is in flight the caller blocks until it
// completes, so a read always reflects the latest finished compaction.
func (s *Summarizer) Context() string {
	for {
		s.mu.Lock()
		waiting := s.inFlight
		if waiting == nil {
			break
		}
		s.mu.Unlock()
		<-waiting
	}
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString(s.state.Summary)
	for _, item := range s.state.Context {
		b.WriteString("\n")
		b.WriteString(item.ContextLine())
	}
	return b.String()
}

// Summary returns the current rolling summary without joining a compaction.
func (s *Summarizer) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Summary
}

func (s *Summarizer) persistLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write context state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("install context state: %w", err)
	}
	return nil
}
