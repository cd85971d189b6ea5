// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
)

// ApplicationHandler is the external collaborator sitting above the
// pipeline's application end. Business-layer message semantics are
// explicitly out of scope for the core (spec.md §1); the core only
// guarantees that messages reach this handler in order.
type ApplicationHandler func(msg *fixmsg.Message)

// Pipeline hosts a named, ordered collection of stages in
// transport→application order and routes messages through them,
// generalizing pkg/cla/tcpclv4/internal/stages.StageHandler's sequential
// execution into a standing, bidirectional chain (spec.md §4.1).
type Pipeline struct {
	stages []Stage
	byName map[string]Stage

	mu      sync.Mutex
	started bool
	stopped bool

	appHandler ApplicationHandler
}

// New creates a Pipeline from stages, listed in transport→application
// order (spec.md §2: Client Session, Message Store, Authentication,
// Sequence Number Manager, Heartbeat).
func New(stages ...Stage) *Pipeline {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name()] = s
	}
	return &Pipeline{stages: stages, byName: byName}
}

// SetApplicationHandler registers the callback invoked with every message
// that clears every stage on the inbound path.
func (p *Pipeline) SetApplicationHandler(h ApplicationHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appHandler = h
}

// Stage looks up a stage by its stable name (spec.md §4.1 apps[name]).
func (p *Pipeline) Stage(name string) (Stage, bool) {
	s, ok := p.byName[name]
	return s, ok
}

// Start invokes Start on every Starter stage in leaf-first order: the
// application-most stage first, the transport-facing Client Session stage
// last, so nothing downstream of the transport can observe traffic before
// it is ready (spec.md §4.1). If any stage fails, Start aborts and
// propagates that error; stages already started are left running — the
// caller is expected to call Stop to unwind them.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if starter, ok := s.(Starter); ok {
			log.WithField("stage", s.Name()).Debug("Starting pipeline stage")
			if err := starter.Start(); err != nil {
				return fmt.Errorf("pipeline: stage %q failed to start: %w", s.Name(), err)
			}
		}
	}

	p.started = true
	return nil
}

// Stop invokes Stop on every Stopper stage in transport→application order
// (the reverse of Start), idempotently. It does not short-circuit on a
// stage's error; all errors are collected and returned together (spec.md
// §4.1).
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	var result error
	for _, s := range p.stages {
		if stopper, ok := s.(Stopper); ok {
			log.WithField("stage", s.Name()).Debug("Stopping pipeline stage")
			if err := stopper.Stop(); err != nil {
				result = multierror.Append(result, fmt.Errorf("stage %q: %w", s.Name(), err))
			}
		}
	}

	p.started = false
	return result
}

// Send pushes msg through the stages in application→transport order. It
// returns after the message has been handed to the transport-facing Client
// Session stage, or has been suppressed by an earlier stage.
func (p *Pipeline) Send(msg *fixmsg.Message) error {
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]

		out, err, handled := dispatchSend(s, msg)
		if !handled {
			continue
		}
		if errors.Is(err, ErrStopMessageProcessing) {
			log.WithFields(log.Fields{"stage": s.Name(), "msg_type": msg.MsgType()}).
				Debug("Outbound message suppressed")
			return nil
		}
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		msg = out
	}
	return nil
}

// Receive pushes msg through the stages in transport→application order. If
// the message survives every stage, it is handed to the registered
// ApplicationHandler. Once msg is fully delivered, any messages released by
// a DrainSource stage (e.g. the Sequence Number Manager's pending-resend
// buffer becoming contiguous) are delivered in turn, in order, before
// Receive returns.
//
// A *SessionError surfacing from any stage is unrecoverable (spec.md §7):
// Receive attempts a Logout and stops every stage itself, so the guarantee
// does not depend on the caller noticing the returned error.
func (p *Pipeline) Receive(msg *fixmsg.Message) error {
	err := p.receiveOne(msg)
	if err == nil {
		err = p.drainReady()
	}

	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		p.handleSessionError(sessErr)
	}
	return err
}

// receiveOne pushes a single message through the stages without draining,
// starting at the beginning of the chain.
func (p *Pipeline) receiveOne(msg *fixmsg.Message) error {
	return p.receiveFrom(0, msg)
}

// receiveFrom pushes msg through stages[start:] and, if it survives all of
// them, hands it to the registered ApplicationHandler. Drained messages
// re-enter here starting just past the DrainSource stage that released
// them, since that stage has already accounted for the message (e.g. the
// Sequence Number Manager has already advanced its receive counter past it)
// and running it through again would misread the message as a duplicate.
func (p *Pipeline) receiveFrom(start int, msg *fixmsg.Message) error {
	for i := start; i < len(p.stages); i++ {
		s := p.stages[i]
		out, err, handled := dispatchReceive(s, msg)
		if !handled {
			continue
		}
		if errors.Is(err, ErrStopMessageProcessing) {
			log.WithFields(log.Fields{"stage": s.Name(), "msg_type": msg.MsgType()}).
				Debug("Inbound message suppressed")
			return nil
		}
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		msg = out
	}

	p.mu.Lock()
	h := p.appHandler
	p.mu.Unlock()

	if h != nil {
		h(msg)
	}
	return nil
}

// drainReady asks every DrainSource stage for messages ready to re-enter
// the pipeline and delivers each in turn, starting downstream of the stage
// that released it, recursively draining again after each in case that
// delivery itself releases further messages.
func (p *Pipeline) drainReady() error {
	for i, s := range p.stages {
		src, ok := s.(DrainSource)
		if !ok {
			continue
		}
		for _, m := range src.TakeReady() {
			if err := p.receiveFrom(i+1, m); err != nil {
				return err
			}
			if err := p.drainReady(); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleSessionError implements spec.md §7's "emit a Logout (if possible),
// stop all stages" for an unrecoverable protocol violation. Both the
// Logout attempt and the stop proceed even if the other fails: a session
// that cannot announce its own departure must still not keep running.
func (p *Pipeline) handleSessionError(sessErr *SessionError) {
	log.WithError(sessErr).Error("Session error, logging out and stopping pipeline")

	if err := p.Send(fixmsg.NewLogout(sessErr.Reason)); err != nil {
		log.WithError(err).Warn("Failed to send Logout after session error")
	}
	if err := p.Stop(); err != nil {
		log.WithError(err).Warn("Errors while stopping pipeline after session error")
	}
}
