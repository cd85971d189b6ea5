// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipeline hosts the ordered chain of stages every inbound and
// outbound FIX message flows through, generalizing the reference engine's
// fixed three-stage TCPCLv4 session handshake
// (pkg/cla/tcpclv4/internal/stages) into an N-stage, bidirectional,
// message-driven pipeline per spec.md §4.1.
package pipeline

import "github.com/dtn7/fixd/pkg/fixmsg"

// HandlerFunc processes one message and returns the (possibly modified)
// message to continue propagation, or ErrStopMessageProcessing to halt it
// for this hop. Any other error is a session-level failure.
type HandlerFunc func(msg *fixmsg.Message) (*fixmsg.Message, error)

// Stage is the minimal capability every pipeline participant has: a stable
// name used for lookup via Pipeline.Stage and in log output. Everything
// else is optional, discovered via type assertion against the interfaces
// below — spec.md §9's "capability record per stage exposing optional
// handlers keyed by MsgType, with a fallback to a generic handler".
type Stage interface {
	Name() string
}

// Starter is implemented by stages with lifecycle setup to perform.
type Starter interface {
	Start() error
}

// Stopper is implemented by stages with lifecycle teardown to perform.
// Stop must be idempotent and safe to call after a failed Start.
type Stopper interface {
	Stop() error
}

// ReceiveHandler is the generic fallback for inbound messages when no more
// specific MsgType handler applies.
type ReceiveHandler interface {
	OnReceive(msg *fixmsg.Message) (*fixmsg.Message, error)
}

// SendHandler is the generic fallback for outbound messages when no more
// specific MsgType handler applies.
type SendHandler interface {
	OnSend(msg *fixmsg.Message) (*fixmsg.Message, error)
}

// ReceiveMsgTypeHandlers is implemented by stages that dispatch some
// administrative MsgTypes on the inbound path to a dedicated handler
// instead of OnReceive. A message whose MsgType has a handler here is not
// passed to OnReceive as well.
type ReceiveMsgTypeHandlers interface {
	ReceiveMsgTypeHandlers() map[fixmsg.MsgType]HandlerFunc
}

// SendMsgTypeHandlers is implemented by stages that dispatch some
// administrative MsgTypes on the outbound path to a dedicated handler
// instead of OnSend. A message whose MsgType has a handler here is not
// passed to OnSend as well.
type SendMsgTypeHandlers interface {
	SendMsgTypeHandlers() map[fixmsg.MsgType]HandlerFunc
}

// DrainSource is implemented by stages that buffer inbound messages and
// later release them once some condition resolves — the Sequence Number
// Manager's pending-resend buffer, drained once a gap is filled (spec.md
// §4.6). After each Pipeline.Receive call completes, the Pipeline asks
// every DrainSource for messages ready to re-enter the pipeline, and
// delivers them in the order returned before considering the original
// Receive call done. A released message re-enters downstream of the
// DrainSource stage itself, never back through it: that stage has already
// accounted for the message once (e.g. advanced a sequence counter past
// it), so running it through again would misread it as a duplicate.
type DrainSource interface {
	TakeReady() []*fixmsg.Message
}

// dispatchReceive calls the most specific inbound hook a stage exposes for
// msg, per spec.md §4.1 Dispatch. ok is false if the stage has no inbound
// hook at all, in which case the message passes through unchanged.
func dispatchReceive(s Stage, msg *fixmsg.Message) (out *fixmsg.Message, err error, ok bool) {
	if h, isTyped := s.(ReceiveMsgTypeHandlers); isTyped {
		if handler, found := h.ReceiveMsgTypeHandlers()[msg.MsgType()]; found {
			out, err = handler(msg)
			return out, err, true
		}
	}
	if h, isGeneric := s.(ReceiveHandler); isGeneric {
		out, err = h.OnReceive(msg)
		return out, err, true
	}
	return msg, nil, false
}

// dispatchSend calls the most specific outbound hook a stage exposes for msg.
func dispatchSend(s Stage, msg *fixmsg.Message) (out *fixmsg.Message, err error, ok bool) {
	if h, isTyped := s.(SendMsgTypeHandlers); isTyped {
		if handler, found := h.SendMsgTypeHandlers()[msg.MsgType()]; found {
			out, err = handler(msg)
			return out, err, true
		}
	}
	if h, isGeneric := s.(SendHandler); isGeneric {
		out, err = h.OnSend(msg)
		return out, err, true
	}
	return msg, nil, false
}
