// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session holds the ephemeral state of interactive
// reinterpretation flows.
//
// Sessions and guards are process-local and intentionally non-durable: a
// restart discards in-flight flows, and the chat platform's own interaction
// token lifetime is the only external bound on how long a user may idle
// between steps. State is injected into the flow handlers as explicit store
// objects rather than referenced as package globals, so handlers stay
// testable in isolation.
package session

import (
	"sync"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

// Context is the immutable snapshot captured when a session opens.
type Context struct {
	// MessageText is the fully recovered reply text.
	MessageText string

	// Metadata is the associated trace record, or nil when the lookup
	// failed or no trace hint was present (best-effort enrichment).
	Metadata *datatypes.ResponseMetadata

	MessageID  string
	ChannelID  string
	ResponseID string
}

// LensSession is the mutable state of one alternative-lens flow.
type LensSession struct {
	Context Context

	// SelectedLensKey is the chosen catalog key, or "" before selection.
	SelectedLensKey string

	// CustomDescription is the user-supplied perspective text; only
	// meaningful when the selected lens requires one.
	CustomDescription string
}

// Store is the session store contract, keyed by (user, message).
type Store interface {
	Get(userID, messageID string) (*LensSession, bool)
	Set(userID, messageID string, s *LensSession)
	Delete(userID, messageID string)
}

// MemoryStore is the in-process Store.
//
// Entries have no TTL by design: a session is reclaimed only by the flow's
// terminal cleanup or by being overwritten on the next init for the same
// key. An abandoned flow therefore leaks one small entry until its key is
// reused; see DESIGN.md for the scope decision.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*LensSession
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*LensSession)}
}

func sessionKey(userID, messageID string) string {
	return userID + ":" + messageID
}

func (m *MemoryStore) Get(userID, messageID string) (*LensSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(userID, messageID)]
	return s, ok
}

func (m *MemoryStore) Set(userID, messageID string, s *LensSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionKey(userID, messageID)] = s
}

func (m *MemoryStore) Delete(userID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(userID, messageID))
}

// Len reports the number of live sessions. Intended for tests and
// diagnostics.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// GuardSet is a mutual-exclusion marker set keyed by message ID.
//
// Membership, not content, is the signal: a message ID present in the set is
// mid-generation, and a second request for it must be refused rather than
// started. TryAcquire is a single check-and-set under the lock, so two
// concurrent submissions for the same ID cannot both pass.
type GuardSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewGuardSet creates an empty guard set.
func NewGuardSet() *GuardSet {
	return &GuardSet{ids: make(map[string]struct{})}
}

// TryAcquire marks the ID as in progress. Returns false if it already was.
func (g *GuardSet) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ids[id]; ok {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

// Release clears the in-progress mark. Safe to call for an absent ID.
func (g *GuardSet) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ids, id)
}

// Held reports whether the ID is currently marked.
func (g *GuardSet) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[id]
	return ok
}
