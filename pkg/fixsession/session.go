// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package fixsession models the FIX session value object: the identity and
// counters of one long-lived conversation with a counterparty, independent
// of the pipeline stages that act on it.
package fixsession

import "sync"

// Session is the value object described in spec.md §3. Its sequence
// counters are owned by the Sequence Number Manager stage; everything else
// is set once at construction or on Logon.
type Session struct {
	mu sync.RWMutex

	SenderCompID      string
	TargetCompID      string
	BeginString       string
	HeartbeatInterval int // seconds

	sendSeqNum    int
	receiveSeqNum int

	isResumed bool
	testMode  bool
}

// New creates a Session identity. Sequence counters start at zero; callers
// resuming a prior session should call SetSeqNums after consulting the
// store.
func New(senderCompID, targetCompID, beginString string, heartbeatInterval int, isResumed bool) *Session {
	return &Session{
		SenderCompID:      senderCompID,
		TargetCompID:      targetCompID,
		BeginString:       beginString,
		HeartbeatInterval: heartbeatInterval,
		isResumed:         isResumed,
	}
}

// IsResumed reports whether this Session continues a prior conversation's
// counters over a new transport connection.
func (s *Session) IsResumed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isResumed
}

// TestMode reports whether the negotiated Logon carried TestMessageIndicator.
func (s *Session) TestMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testMode
}

// SetTestMode is called by the Authentication stage once negotiation succeeds.
func (s *Session) SetTestMode(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testMode = v
}

// SendSeqNum returns the current outbound sequence number.
func (s *Session) SendSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sendSeqNum
}

// ReceiveSeqNum returns the highest contiguously received inbound MsgSeqNum.
func (s *Session) ReceiveSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiveSeqNum
}

// SetSeqNums sets both counters directly, used on startup to resume from
// the store or reset to zero for a new session (spec.md §4.6 Startup).
func (s *Session) SetSeqNums(send, receive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeqNum = send
	s.receiveSeqNum = receive
}

// NextSendSeqNum increments and returns the outbound sequence number.
func (s *Session) NextSendSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeqNum++
	return s.sendSeqNum
}

// AdvanceReceiveSeqNum increments and returns the inbound counter.
func (s *Session) AdvanceReceiveSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiveSeqNum++
	return s.receiveSeqNum
}

// ID returns the conventional FIX session identifier, used as the store key.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BeginString + ":" + s.SenderCompID + "->" + s.TargetCompID
}
