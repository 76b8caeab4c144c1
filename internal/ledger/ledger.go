package ledger

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// DateLayout is the UTC calendar date key.
const DateLayout = "2006-01-02"

// ErrAlreadyMarked is returned when a date is marked a second time.
var ErrAlreadyMarked = errors.New("day already marked")

// Ledger is the DayGate: one trade attempt per UTC date. Marks are never removed.
type Ledger struct {
	mu       sync.Mutex
	state    *State
	filePath string
}

// Open loads the ledger from filePath. An empty path keeps it in memory only.
func Open(filePath string) (*Ledger, error) {
	if filePath == "" {
		return New(), nil
	}
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	l := &Ledger{state: state, filePath: filePath}
	if err := l.save(); err != nil {
		return nil, err
	}
	return l, nil
}

// New creates an in-memory ledger.
func New() *Ledger {
	return &Ledger{state: &State{Days: map[string]*Entry{}}}
}

// DateOf returns the UTC date key of t.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Traded reports whether date has been marked.
func (l *Ledger) Traded(date string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.state.Days[date]
	return ok
}

// Mark records the day's attempt. It succeeds exactly once per date.
// A persistence failure is returned but the date stays marked in memory.
func (l *Ledger) Mark(date, cause string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.state.Days[date]; ok {
		return fmt.Errorf("%w: %s (%s)", ErrAlreadyMarked, date, e.Cause)
	}
	l.state.Days[date] = &Entry{Date: date, Cause: cause, At: time.Now().UTC()}
	log.Printf("[INFO] day %s marked: %s", date, cause)
	return l.save()
}

// RecordOutcome attaches the execution outcome to a marked date.
func (l *Ledger) RecordOutcome(date, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state.Days[date]
	if !ok {
		return fmt.Errorf("record outcome: day %s not marked", date)
	}
	e.Outcome = outcome
	return l.save()
}

// Count returns the number of marked days.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.Days)
}

// Get returns a copy of the entry for date.
func (l *Ledger) Get(date string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state.Days[date]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries, oldest first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.state.Days))
	for _, e := range l.state.Days {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (l *Ledger) save() error {
	if l.filePath == "" {
		return nil
	}
	if err := SaveState(l.filePath, l.state); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
