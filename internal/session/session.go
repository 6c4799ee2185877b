// Package session holds per-principal conversational state. The state is
// an explicit keyed store, scoped to one chat, so concurrent principals
// never observe each other's setup progress.
package session

import (
	"sync"
	"time"

	"github.com/mkrav/gitdocs/schema"
)

// Stage names the next input the bot expects from a principal.
type Stage string

const (
	// StageIdle means no multi-step flow is in progress.
	StageIdle Stage = "idle"
	// StageAwaitRepoURL means setup waits for a repository URL.
	StageAwaitRepoURL Stage = "await_repo_url"
	// StageAwaitCredentials means setup waits for username and token.
	StageAwaitCredentials Stage = "await_credentials"
	// StageAwaitKeyConfirm means setup waits for the user to register the
	// generated SSH public key with the hosting platform.
	StageAwaitKeyConfirm Stage = "await_key_confirm"
	// StageAwaitUpload means the bot waits for a replacement file.
	StageAwaitUpload Stage = "await_upload"
	// StageAwaitDescription means the bot waits for a change description.
	StageAwaitDescription Stage = "await_description"
)

// State is one principal's in-flight flow. Zero value means idle.
type State struct {
	Stage Stage
	// RemoteURL is the normalized repository URL collected during setup.
	RemoteURL string
	// VCSUsername collected during setup, before the binding exists.
	VCSUsername string
	// Document is the target of an in-flight upload flow.
	Document schema.Document
	// PendingFile is a temp path holding uploaded content awaiting a
	// description.
	PendingFile string
	UpdatedAt   time.Time
}

// Store is a concurrency-safe session store keyed by chat id.
type Store struct {
	mu sync.Mutex
	m  map[schema.ChatID]State
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{m: make(map[schema.ChatID]State)}
}

// Get returns the principal's current state, idle when absent.
func (s *Store) Get(id schema.ChatID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.m[id]
	if !ok {
		return State{Stage: StageIdle}
	}
	return state
}

// Update applies fn to the principal's state under the store lock.
func (s *Store) Update(id schema.ChatID, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.m[id]
	if !ok {
		state = State{Stage: StageIdle}
	}
	fn(&state)
	state.UpdatedAt = time.Now()
	s.m[id] = state
	return state
}

// Reset returns the principal to idle, discarding any in-flight flow.
func (s *Store) Reset(id schema.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}
