// Package accesstable implements the replica access table: a
// process-wide token<->pid map authorizing a pid to continue writing to
// an already-open replica across close/reopen within a session. Tokens
// are minted with crypto/rand and hex-encoded, structured as a table
// type rather than a single global map so a process can hold more than
// one (e.g. under test).
package accesstable

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

const tokenBytes = 32

// Entry is one replica-access-table row.
type Entry struct {
	Token         string
	PID           string
	DataID        int64
	ReplicaNumber int
}

// Table is the process-wide token->pid map plus its pid->tokens inverse
// index for enumeration. Safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	byToken map[string]*Entry
	byPID   map[string][]string // pid -> tokens
}

// New builds an empty Table.
func New() *Table {
	return &Table{
		byToken: make(map[string]*Entry),
		byPID:   make(map[string][]string),
	}
}

// Issue mints a random token authorizing pid to write to
// (dataID, replicaNumber) and inserts it.
func (t *Table) Issue(dataID int64, replicaNumber int, pid string) (string, error) {
	token, err := mintToken()
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.byToken[token] = &Entry{
		Token:         token,
		PID:           pid,
		DataID:        dataID,
		ReplicaNumber: replicaNumber,
	}
	t.byPID[pid] = append(t.byPID[pid], token)
	return token, nil
}

// Contains returns the entry for token, or nil if no such token exists.
func (t *Table) Contains(token string) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byToken[token]
	if !ok {
		return nil
	}
	copy := *e
	return &copy
}

// ErasePID atomically removes token if it belongs to pid and returns the
// removed entry, or nil if token did not exist or belonged to a
// different pid. Callers use this on write-close, before invoking
// finalize, so no other opener can observe the replica as writable
// until close succeeds.
func (t *Table) ErasePID(token, pid string) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byToken[token]
	if !ok || e.PID != pid {
		return nil
	}
	delete(t.byToken, token)
	t.byPID[pid] = removeToken(t.byPID[pid], token)
	if len(t.byPID[pid]) == 0 {
		delete(t.byPID, pid)
	}
	return e
}

// Restore re-inserts a previously-erased entry verbatim. Used to undo
// ErasePID when finalize fails, leaving the system in its pre-close
// state.
func (t *Table) Restore(e *Entry) {
	if e == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byToken[e.Token] = e
	t.byPID[e.PID] = append(t.byPID[e.PID], e.Token)
}

// TokensForPID lists every token currently held by pid.
func (t *Table) TokensForPID(pid string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tokens := t.byPID[pid]
	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

func removeToken(tokens []string, target string) []string {
	out := tokens[:0]
	for _, tok := range tokens {
		if tok != target {
			out = append(out, tok)
		}
	}
	return out
}

func mintToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
