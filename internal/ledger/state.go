package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one marked trading day.
type Entry struct {
	Date    string    `json:"date"`
	Cause   string    `json:"cause"`
	Outcome string    `json:"outcome,omitempty"`
	At      time.Time `json:"at"`
}

// State is the persisted ledger.
type State struct {
	Days      map[string]*Entry `json:"days"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LoadState reads the ledger from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Days: map[string]*Entry{}}, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if state.Days == nil {
		state.Days = map[string]*Entry{}
	}
	return &state, nil
}

// SaveState writes the ledger to a JSON file.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	return os.WriteFile(filePath, data, 0644)
}
