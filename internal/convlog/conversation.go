package convlog

import (
	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/pkg/types"
)

// Conversation ties the durable sharded log to the summarized context
// window. This is the surface the agent layer and the history UI consume.
type Conversation struct {
	log        *Log
	summarizer *Summarizer
}

// Options configures both halves of the conversation record.
type Options struct {
	Log        LogOptions
	Summarizer SummarizerOptions
}

// Open opens the sharded log in dir and the context state at contextPath.
func Open(dir, contextPath string, opts Options, gen llm.TextGenerator, logger *logrus.Logger) (*Conversation, error) {
	log, err := OpenLog(dir, opts.Log, logger)
	if err != nil {
		return nil, err
	}
	return &Conversation{
		log:        log,
		summarizer: NewSummarizer(contextPath, opts.Summarizer, gen, logger),
	}, nil
}

// Append records the item durably and feeds it to the context window,
// possibly triggering a background compaction.
func (c *Conversation) Append(item types.ConversationItem) error {
	if err := c.log.Append(item); err != nil {
		return err
	}
	c.summarizer.Observe(item)
	return nil
}

// ReadRange returns records [start, end) from the durable log.
func (c *Conversation) ReadRange(start, end int) ([]types.ConversationItem, error) {
	return c.log.ReadRange(start, end)
}

// ReadNearest returns the most recent n records.
func (c *Conversation) ReadNearest(n int) ([]types.ConversationItem, error) {
	return c.log.ReadNearest(n)
}

// TotalCount reports the number of records ever appended.
func (c *Conversation) TotalCount() int { return c.log.TotalCount() }

// Context returns the rolling summary plus the raw recent window, blocking
// on any in-flight compaction.
func (c *Conversation) Context() string { return c.summarizer.Context() }
