// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport supervises the byte-stream connection beneath the
// pipeline's Client Session stage: connecting, detecting disconnects, and
// reconnecting with bounded exponential backoff. The byte-level transport
// itself (TCP/TLS) is an external collaborator (spec.md §1); this package
// only supervises it, mirroring the retry/backoff supervision loop of
// pkg/cla/manager.Manager generalized from a fixed retry interval to
// exponential backoff.
package transport

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrReconnectionExhausted is passed to OnUnrecoverable once the configured
// BackoffPolicy's MaxAttempts is reached without success.
var ErrReconnectionExhausted = errors.New("transport: reconnection attempts exhausted")

// Connector opens (or re-opens) the underlying byte stream. Implementations
// live outside the core; a Connector might dial a TCP socket, negotiate
// TLS, or hand back an in-memory pipe for tests.
type Connector interface {
	// Connect establishes the connection. It blocks until connected or an
	// unrecoverable error occurs.
	Connect() error

	// Closed reports whether a previously established connection has
	// dropped. Supervisor polls this between message activity.
	Closed() bool

	// Close tears down the connection.
	Close() error
}

// BackoffPolicy bounds the reconnection attempts' exponential backoff.
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	MaxAttempts  int // 0 means unlimited
}

// DefaultBackoffPolicy waits one second before the first reconnection
// attempt and doubles the delay after each failure, up to a minute, with no
// limit on the number of attempts.
var DefaultBackoffPolicy = BackoffPolicy{
	InitialDelay: 1 * time.Second,
	MaxDelay:     1 * time.Minute,
	Factor:       2.0,
	MaxAttempts:  0,
}

// Supervisor owns a Connector and keeps it connected, reconnecting on
// failure with bounded exponential backoff. It reports unrecoverable
// disconnects (MaxAttempts exhausted) to the OnUnrecoverable callback so
// the pipeline can stop (spec.md §4.2).
type Supervisor struct {
	connector Connector
	policy    BackoffPolicy

	// OnUnrecoverable is invoked once reconnection attempts are exhausted.
	OnUnrecoverable func(err error)

	mu              sync.RWMutex
	lastReceive     time.Time
	stopCh          chan struct{}
	stopped         bool
	isResumed       bool
	reconnectActive bool
}

// NewSupervisor creates a Supervisor for connector using policy.
func NewSupervisor(connector Connector, policy BackoffPolicy) *Supervisor {
	return &Supervisor{
		connector: connector,
		policy:    policy,
		stopCh:    make(chan struct{}),
	}
}

// Connect performs the initial connection. isResumed tells the session
// lifecycle whether this connection continues a session whose counters
// should be read back from the store (spec.md §4.2).
func (s *Supervisor) Connect(isResumed bool) error {
	s.mu.Lock()
	s.isResumed = isResumed
	s.mu.Unlock()

	if err := s.connector.Connect(); err != nil {
		return err
	}

	s.markReceived()
	return nil
}

// IsResumed reports whether the current connection continues a prior
// session's sequence counters.
func (s *Supervisor) IsResumed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isResumed
}

// markReceived records the arrival of inbound traffic, for
// SecSinceLastReceive.
func (s *Supervisor) markReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReceive = time.Now()
}

// MarkReceived is the exported form, called by the Client Session stage's
// inbound hook for every message that arrives off the wire.
func (s *Supervisor) MarkReceived() {
	s.markReceived()
}

// SecSinceLastReceive reports elapsed seconds since the last inbound
// traffic, exposed to the Heartbeat stage (spec.md §4.2).
func (s *Supervisor) SecSinceLastReceive() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReceive.IsZero() {
		return 0
	}
	return time.Since(s.lastReceive).Seconds()
}

// WatchForDisconnect polls the Connector for a dropped connection and
// reconnects with exponential backoff, then keeps watching. It returns only
// once the Supervisor has been stopped. When a round of reconnection
// attempts exhausts the retry budget, OnUnrecoverable is invoked; if that
// does not stop the Supervisor, a later poll starts a fresh round.
func (s *Supervisor) WatchForDisconnect() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.connector.Closed() {
				continue
			}
			s.reconnect()
		}
	}
}

func (s *Supervisor) reconnect() {
	s.mu.Lock()
	if s.reconnectActive {
		s.mu.Unlock()
		return
	}
	s.reconnectActive = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnectActive = false
		s.mu.Unlock()
	}()

	delay := s.policy.InitialDelay
	attempt := 0

	for {
		attempt++
		if s.policy.MaxAttempts > 0 && attempt > s.policy.MaxAttempts {
			log.WithField("attempts", attempt-1).Warn("Transport supervisor exhausted reconnection attempts")
			if s.OnUnrecoverable != nil {
				s.OnUnrecoverable(ErrReconnectionExhausted)
			}
			return
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		log.WithField("attempt", attempt).Info("Transport supervisor attempting reconnection")
		if err := s.connector.Connect(); err == nil {
			// isResumed becomes true whatever Connect was given: a
			// reconnect within the same Supervisor lifetime always
			// continues the prior session's counters.
			s.mu.Lock()
			s.isResumed = true
			s.mu.Unlock()
			s.markReceived()
			return
		}

		delay = time.Duration(float64(delay) * s.policy.Factor)
		if delay > s.policy.MaxDelay {
			delay = s.policy.MaxDelay
		}
	}
}

// Stop closes the connection and halts reconnection attempts.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	return s.connector.Close()
}
