package ircore

import "sync"

// notifyEntry is one tracked MONITOR target and its last known
// online/offline state (the "notify" option and 4.10's
// RPL_MONONLINE/RPL_MONOFFLINE handling).
type notifyEntry struct {
	Nick   string
	Online bool
}

// notifyList is the client-side mirror of the server's MONITOR list: the
// set of nicks configured via the "notify" option, kept in sync with
// RPL_MONONLINE (730) / RPL_MONOFFLINE (731) / RPL_MONLIST (732).
type notifyList struct {
	mu      sync.Mutex
	entries map[string]*notifyEntry
}

func newNotifyList(nicks []string) *notifyList {
	l := &notifyList{entries: make(map[string]*notifyEntry, len(nicks))}
	for _, n := range nicks {
		l.entries[foldSimple(n)] = &notifyEntry{Nick: n}
	}
	return l
}

// foldSimple is the casemapping-independent A-Z fold used for every
// notify-list map key. Entries are not re-keyed once ISUPPORT CASEMAPPING
// is known, so nicks that differ only in characters the server's
// casemapping folds beyond A-Z are tracked as different entries.
func foldSimple(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Nicks returns every nick this client asked the server to MONITOR.
func (l *notifyList) Nicks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Nick)
	}
	return out
}

// Add registers a new MONITOR target, defaulting to offline until the
// server reports otherwise.
func (l *notifyList) Add(nick string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := foldSimple(nick)
	if _, ok := l.entries[key]; !ok {
		l.entries[key] = &notifyEntry{Nick: nick}
	}
}

// Remove drops a MONITOR target.
func (l *notifyList) Remove(nick string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, foldSimple(nick))
}

// setOnline updates the tracked state for nick, returning false if nick
// isn't a tracked entry (the numeric should still be surfaced to the
// signal stream either way, just without a state transition).
func (l *notifyList) setOnline(nick string, online bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[foldSimple(nick)]
	if !ok {
		return false
	}
	e.Online = online
	return true
}

// IsOnline reports the last known state of a tracked nick.
func (l *notifyList) IsOnline(nick string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[foldSimple(nick)]
	return ok && e.Online
}
