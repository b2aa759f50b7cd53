package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/internal/llm"
	"github.com/utakata/mnemosyne/internal/vector"
	"github.com/utakata/mnemosyne/pkg/types"
)

// Writer asks the model what the last interaction was worth remembering
// and applies the resulting add/update commands to the vector store.
type Writer struct {
	store   vector.Store
	profile *UserProfile
	ring    *updateRing
	gen     llm.TextGenerator
	logger  *logrus.Logger
	now     func() time.Time
}

func NewWriter(store vector.Store, profile *UserProfile, ringPath string, gen llm.TextGenerator, logger *logrus.Logger) *Writer {
	return &Writer{
		store:   store,
		profile: profile,
		ring:    openUpdateRing(ringPath, logger),
		gen:     gen,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessInteraction runs the write plan for a finished interaction.
// usedIDs are the vector documents retrieval surfaced for it; update
// commands may only target those or the recent write ring, which keeps
// a hallucinated UUID from corrupting unrelated memories. Individual
// command failures are logged and skipped.
func (w *Writer) ProcessInteraction(ctx context.Context, history []string, usedIDs map[string]bool) error {
	related, err := w.relatedDocs(ctx, usedIDs)
	if err != nil {
		w.logger.WithError(err).Warn("memory: cannot load related documents")
	}
	prompt := llm.WritePlanPrompt(history, w.ring.lines(), related)
	resp, err := w.gen.Complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("memory: write planning failed: %w", err)
	}
	lines, malformed := llm.ParsePlan(resp)
	for _, m := range malformed {
		w.logger.WithField("line", m).Warn("memory: skipping malformed write line")
	}
	for _, line := range lines {
		if err := w.apply(ctx, line, usedIDs); err != nil {
			w.logger.WithError(err).WithField("command", line.Name).Warn("memory: write command failed")
		}
	}
	return nil
}

// apply dispatches a write line by verb. Matching is by substring
// because models improvise names like memory_update or v_add_document.
func (w *Writer) apply(ctx context.Context, line llm.PlanLine, usedIDs map[string]bool) error {
	name := strings.ToLower(line.Name)
	switch {
	case strings.Contains(name, "username"):
		return w.applyUsername(line)
	case strings.Contains(name, "update"):
		return w.applyUpdate(ctx, line, usedIDs)
	case strings.Contains(name, "add"):
		return w.applyAdd(ctx, line)
	default:
		return fmt.Errorf("unknown write command %q", line.Name)
	}
}

func (w *Writer) applyUsername(line llm.PlanLine) error {
	// The planner prompt advertises set_username(name='...'), but models
	// also improvise username= and new_username=.
	name := line.Arg("name")
	if name == "" {
		name = line.Arg("username")
	}
	if name == "" {
		name = line.Arg("new_username")
	}
	if name == "" {
		return fmt.Errorf("username command without a username")
	}
	w.logger.WithField("username", name).Info("memory: updating form of address")
	return w.profile.UpdateUsername(name)
}

func (w *Writer) applyAdd(ctx context.Context, line llm.PlanLine) error {
	content := line.Arg("document")
	if content == "" {
		return fmt.Errorf("add command without a document")
	}
	ids, err := w.store.AddDocuments(ctx, []types.Document{{
		Content:  content,
		Metadata: map[string]any{"timestamp": w.now().Format(types.TimestampLayout)},
	}})
	if err != nil {
		return err
	}
	w.ring.record(types.MemoryUpdateCommand{Kind: types.UpdateAdd, Content: content, UUID: ids[0]})
	w.logger.WithField("id", ids[0]).Info("memory: stored new memory")
	return nil
}

func (w *Writer) applyUpdate(ctx context.Context, line llm.PlanLine, usedIDs map[string]bool) error {
	content := line.Arg("new_document")
	if content == "" {
		content = line.Arg("document")
	}
	if content == "" {
		return fmt.Errorf("update command without a document")
	}
	id, ok := w.resolveUUID(line.Arg("uuid"), usedIDs)
	if !ok {
		return fmt.Errorf("update targets unknown uuid %q", line.Arg("uuid"))
	}
	err := w.store.UpdateDocument(ctx, id, types.Document{
		Content:  content,
		Metadata: map[string]any{"timestamp": w.now().Format(types.TimestampLayout)},
	})
	if err != nil {
		return err
	}
	w.ring.record(types.MemoryUpdateCommand{Kind: types.UpdateAmend, Content: content, UUID: id})
	w.logger.WithField("id", id).Info("memory: amended memory")
	return nil
}

// resolveUUID matches a possibly truncated UUID against the documents
// this interaction actually saw: retrieval hits plus the recent write
// ring. Models routinely echo only a prefix.
func (w *Writer) resolveUUID(raw string, usedIDs map[string]bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if usedIDs[raw] {
		return raw, true
	}
	candidates := make([]string, 0, len(usedIDs)+ringCapacity)
	for id := range usedIDs {
		candidates = append(candidates, id)
	}
	candidates = append(candidates, w.ring.ids()...)
	for _, id := range candidates {
		if id == raw {
			return id, true
		}
	}
	for _, id := range candidates {
		if strings.HasPrefix(id, raw) {
			return id, true
		}
	}
	return "", false
}

// relatedDocs renders the retrieval hits for the write-plan prompt so
// the model can decide between amending and adding.
func (w *Writer) relatedDocs(ctx context.Context, usedIDs map[string]bool) ([]string, error) {
	if len(usedIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(usedIDs))
	for id := range usedIDs {
		ids = append(ids, id)
	}
	docs, err := w.store.DocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fmt.Sprintf("uuid=%s: %s", doc.ID, doc.Content))
	}
	return out, nil
}
