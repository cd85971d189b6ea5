// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides the durable mapping of (session, direction,
// seq_num) to Message described in spec.md §3/§4.3. It is a pluggable
// collaborator: the pipeline only depends on the MessageStore interface.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dtn7/fixd/pkg/fixmsg"
)

// MessageStore is the durable record of every sent and received message,
// keyed by (session_id, direction, seq_num). Entries are immutable once
// written. Implementations must tolerate concurrent reads during writes;
// writers are single-threaded per direction (spec.md §4.3, §5).
type MessageStore interface {
	// SetSent records an outbound message. Must be durable before the
	// caller acknowledges the message downstream.
	SetSent(sessionID string, msg *fixmsg.Message) error

	// SetReceived records an inbound message.
	SetReceived(sessionID string, msg *fixmsg.Message) error

	// GetSent returns outbound messages with seq_num in [lo, hi], ascending.
	GetSent(sessionID string, lo, hi int) ([]*fixmsg.Message, error)

	// GetReceived returns inbound messages with seq_num in [lo, hi], ascending.
	GetReceived(sessionID string, lo, hi int) ([]*fixmsg.Message, error)

	// MaxSent returns the highest recorded outbound seq_num, or 0 if none.
	MaxSent(sessionID string) (int, error)

	// MaxReceived returns the highest recorded inbound seq_num, or 0 if none.
	MaxReceived(sessionID string) (int, error)

	// Purge removes every record for sessionID. Retention policy around
	// when to call this is not the core's concern (spec.md §3 Lifecycle).
	Purge(sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}

type direction int

const (
	dirSent direction = iota
	dirReceived
)

type key struct {
	sessionID string
	dir       direction
	seqNum    int
}

// MemoryStore is an in-memory MessageStore, used for tests and ephemeral
// sessions. It mirrors the reference engine's pattern of offering a simple
// always-available store alongside a persistent one.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[key]*fixmsg.Message
	maxSeq  map[string]map[direction]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[key]*fixmsg.Message),
		maxSeq:  make(map[string]map[direction]int),
	}
}

func (s *MemoryStore) set(sessionID string, dir direction, msg *fixmsg.Message) error {
	seqNum := msg.MsgSeqNum()
	if seqNum <= 0 {
		return fmt.Errorf("store: refusing to record message with non-positive seq_num %d", seqNum)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key{sessionID, dir, seqNum}] = msg

	if s.maxSeq[sessionID] == nil {
		s.maxSeq[sessionID] = make(map[direction]int)
	}
	if seqNum > s.maxSeq[sessionID][dir] {
		s.maxSeq[sessionID][dir] = seqNum
	}
	return nil
}

// SetSent implements MessageStore.
func (s *MemoryStore) SetSent(sessionID string, msg *fixmsg.Message) error {
	return s.set(sessionID, dirSent, msg)
}

// SetReceived implements MessageStore.
func (s *MemoryStore) SetReceived(sessionID string, msg *fixmsg.Message) error {
	return s.set(sessionID, dirReceived, msg)
}

func (s *MemoryStore) getRange(sessionID string, dir direction, lo, hi int) ([]*fixmsg.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*fixmsg.Message
	for k, msg := range s.entries {
		if k.sessionID == sessionID && k.dir == dir && k.seqNum >= lo && k.seqNum <= hi {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MsgSeqNum() < out[j].MsgSeqNum() })
	return out, nil
}

// GetSent implements MessageStore.
func (s *MemoryStore) GetSent(sessionID string, lo, hi int) ([]*fixmsg.Message, error) {
	return s.getRange(sessionID, dirSent, lo, hi)
}

// GetReceived implements MessageStore.
func (s *MemoryStore) GetReceived(sessionID string, lo, hi int) ([]*fixmsg.Message, error) {
	return s.getRange(sessionID, dirReceived, lo, hi)
}

// MaxSent implements MessageStore.
func (s *MemoryStore) MaxSent(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSeq[sessionID][dirSent], nil
}

// MaxReceived implements MessageStore.
func (s *MemoryStore) MaxReceived(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSeq[sessionID][dirReceived], nil
}

// Purge implements MessageStore.
func (s *MemoryStore) Purge(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.sessionID == sessionID {
			delete(s.entries, k)
		}
	}
	delete(s.maxSeq, sessionID)
	return nil
}

// Close implements MessageStore; MemoryStore holds no resources.
func (s *MemoryStore) Close() error {
	return nil
}
