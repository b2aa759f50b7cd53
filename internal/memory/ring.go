package memory

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/utakata/mnemosyne/pkg/types"
)

const ringCapacity = 5

// updateRing remembers the most recent memory writes so the next write
// plan can see them and amend instead of duplicating. It is persisted
// alongside the rest of the memory state.
type updateRing struct {
	path    string
	entries []types.MemoryUpdateCommand
	logger  *logrus.Logger
}

func openUpdateRing(path string, logger *logrus.Logger) *updateRing {
	r := &updateRing{path: path, logger: logger}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("memory: cannot read recent updates")
		}
		return r
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		logger.WithError(err).Warn("memory: corrupt recent updates, starting empty")
		r.entries = nil
	}
	if len(r.entries) > ringCapacity {
		r.entries = r.entries[len(r.entries)-ringCapacity:]
	}
	return r
}

func (r *updateRing) record(cmd types.MemoryUpdateCommand) {
	r.entries = append(r.entries, cmd)
	if len(r.entries) > ringCapacity {
		r.entries = r.entries[len(r.entries)-ringCapacity:]
	}
	r.save()
}

func (r *updateRing) save() {
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		r.logger.WithError(err).Warn("memory: cannot marshal recent updates")
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.logger.WithError(err).Warn("memory: cannot create data dir")
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.logger.WithError(err).Warn("memory: cannot persist recent updates")
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.logger.WithError(err).Warn("memory: cannot persist recent updates")
	}
}

// ids returns the document IDs touched by the remembered writes.
func (r *updateRing) ids() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.UUID != "" {
			out = append(out, e.UUID)
		}
	}
	return out
}

// lines renders the remembered writes for the write-plan prompt.
func (r *updateRing) lines() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.String())
	}
	return out
}
