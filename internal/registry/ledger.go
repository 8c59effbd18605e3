package registry

import (
	"log/slog"
	"sync"

	"clanbridge/internal/storage"
	dErrors "clanbridge/pkg/domain-errors"
)

// LedgerFile is the on-disk name of the registration document.
const LedgerFile = "registrations.json"

// Ledger is the persisted member-id → clan-tag mapping. All mutations are
// serialized behind one mutex and written through the store before they are
// confirmed to a caller: concurrent approvals for the same tag cannot tear
// the document.
type Ledger struct {
	store  *storage.Store
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]string
}

// LoadLedger reads the registration document from disk.
func LoadLedger(store *storage.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{store: store, logger: logger, entries: make(map[string]string)}
	store.Load(LedgerFile, &l.entries)
	if l.entries == nil {
		l.entries = make(map[string]string)
	}
	logger.Info("ledger loaded", "registrations", len(l.entries))
	return l
}

// Get returns the tag registered for a member.
func (l *Ledger) Get(memberID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tag, ok := l.entries[memberID]
	return tag, ok
}

// Owner returns the member currently bound to a tag.
func (l *Ledger) Owner(tag string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for memberID, t := range l.entries {
		if t == tag {
			return memberID, true
		}
	}
	return "", false
}

// Assign binds memberID to tag and persists. On a write failure the
// in-memory change is rolled back so memory never claims more than disk
// holds.
func (l *Ledger) Assign(memberID, tag string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, had := l.entries[memberID]
	l.entries[memberID] = tag
	if err := l.store.Save(LedgerFile, l.entries); err != nil {
		if had {
			l.entries[memberID] = prev
		} else {
			delete(l.entries, memberID)
		}
		return dErrors.Wrap(err, dErrors.CodePersistence, "persist registration")
	}
	return nil
}

// Remove deletes a member's entry and persists. It reports whether an entry
// existed; removing an absent entry is a no-op, not an error.
func (l *Ledger) Remove(memberID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, had := l.entries[memberID]
	if !had {
		return false, nil
	}
	delete(l.entries, memberID)
	if err := l.store.Save(LedgerFile, l.entries); err != nil {
		l.entries[memberID] = prev
		return true, dErrors.Wrap(err, dErrors.CodePersistence, "persist registration removal")
	}
	return true, nil
}

// Snapshot copies the entries for iteration so a verification pass is not
// corrupted by concurrent approvals.
func (l *Ledger) Snapshot() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

// Len reports the number of registrations.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
