package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// UserProfile holds what the agent knows about its human: the name to
// address them by and a free-form description accumulated over time.
type UserProfile struct {
	mu     sync.Mutex
	path   string
	logger *logrus.Logger

	Name        string `json:"name"`
	Description string `json:"description"`
}

// OpenUserProfile loads the profile file, starting empty when it is
// missing or corrupt.
func OpenUserProfile(path string, logger *logrus.Logger) *UserProfile {
	p := &UserProfile{path: path, logger: logger, Name: "user"}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("memory: cannot read user profile")
		}
		return p
	}
	if err := json.Unmarshal(data, p); err != nil {
		logger.WithError(err).Warn("memory: corrupt user profile, starting empty")
		p.Name, p.Description = "user", ""
	}
	if p.Name == "" {
		p.Name = "user"
	}
	return p
}

// UserName returns the current form of address.
func (p *UserProfile) UserName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Name
}

// UpdateUsername changes the form of address and persists the profile.
func (p *UserProfile) UpdateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("memory: empty username")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Name = name
	return p.saveLocked()
}

// UpdateDescription replaces the user description and persists.
func (p *UserProfile) UpdateDescription(desc string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Description = desc
	return p.saveLocked()
}

func (p *UserProfile) saveLocked() error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("memory: create data dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: persist profile: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("memory: persist profile: %w", err)
	}
	return nil
}
