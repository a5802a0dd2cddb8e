package engine

import (
	"sort"

	"adaptive-test-service/internal/domain"
)

// Ledger stores at most one live answer per question index. Later writes win.
// Entries are never removed mid-session; an empty answer means skipped.
type Ledger struct {
	entries map[int]domain.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[int]domain.LedgerEntry)}
}

// LedgerFromEntries rebuilds a ledger from a persisted snapshot.
func LedgerFromEntries(entries []domain.LedgerEntry) *Ledger {
	l := NewLedger()
	for _, e := range entries {
		l.entries[e.Index] = e
	}
	return l
}

// Upsert records answer for index, keeping any flag already set.
func (l *Ledger) Upsert(index int, answer domain.Answer) {
	entry := l.entries[index]
	entry.Index = index
	entry.Answer = answer
	l.entries[index] = entry
}

// SetFlag mirrors the flagged state onto the entry, creating an unanswered one if needed.
func (l *Ledger) SetFlag(index int, flagged bool) {
	entry := l.entries[index]
	entry.Index = index
	entry.IsFlagged = flagged
	l.entries[index] = entry
}

// Get returns the live answer for index; ok is false when the question is unanswered.
func (l *Ledger) Get(index int) (domain.Answer, bool) {
	entry, found := l.entries[index]
	if !found || entry.Answer.IsEmpty() {
		return domain.Answer{}, false
	}
	return entry.Answer, true
}

// Answered counts entries holding a non-empty answer.
func (l *Ledger) Answered() int {
	n := 0
	for _, e := range l.entries {
		if !e.Answer.IsEmpty() {
			n++
		}
	}
	return n
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// ToArray returns the entries ordered by question index.
func (l *Ledger) ToArray() []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Reset clears every entry. Only used when a session restarts from scratch.
func (l *Ledger) Reset() {
	l.entries = make(map[int]domain.LedgerEntry)
}
