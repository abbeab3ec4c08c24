package workflow

import "sync"

// expenseLocks serializes mutating operations per expense ID. Entries
// are reference-counted and removed once the last holder unlocks, so
// the map does not grow with the number of expenses ever touched.
type expenseLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newExpenseLocks() *expenseLocks {
	return &expenseLocks{
		entries: make(map[string]*lockEntry),
	}
}

// Lock acquires the per-expense mutex and returns its unlock function
func (l *expenseLocks) Lock(expenseID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[expenseID]
	if !ok {
		entry = &lockEntry{}
		l.entries[expenseID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, expenseID)
		}
		l.mu.Unlock()
	}
}
