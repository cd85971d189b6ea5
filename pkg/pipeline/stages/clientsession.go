// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/transport"
)

// StageNameClientSession is the stable name of the Client Session stage
// (spec.md §2, first in transport→application order).
const StageNameClientSession = "client_session"

// MessageWriter hands an encoded message to the wire. Byte-level encoding
// and the transport socket are external collaborators (spec.md §1); the
// Client Session stage only needs somewhere to deliver the final message.
type MessageWriter interface {
	WriteMessage(msg *fixmsg.Message) error
}

// ClientSessionStage is the transport-facing end of the pipeline: it owns
// connection lifecycle via a transport.Supervisor, exposes IsResumed and
// SecSinceLastReceive, and is the last stage an outbound message passes
// through before reaching the wire (spec.md §4.2).
type ClientSessionStage struct {
	supervisor *transport.Supervisor
	writer     MessageWriter
	pipe       PipelineHandle
}

// NewClientSessionStage creates the Client Session stage. pipe is used to
// request a pipeline-wide stop on an unrecoverable disconnect.
func NewClientSessionStage(supervisor *transport.Supervisor, writer MessageWriter, pipe PipelineHandle) *ClientSessionStage {
	cs := &ClientSessionStage{supervisor: supervisor, writer: writer, pipe: pipe}
	supervisor.OnUnrecoverable = cs.handleUnrecoverable
	return cs
}

// Name implements pipeline.Stage.
func (cs *ClientSessionStage) Name() string {
	return StageNameClientSession
}

// Start implements pipeline.Starter by beginning disconnect supervision.
// The initial Connect call is made by the caller (cmd/fixd) before Pipeline
// Start, since whether this is a resumed session must be known before the
// Sequence Number Manager's own Start runs.
func (cs *ClientSessionStage) Start() error {
	go cs.supervisor.WatchForDisconnect()
	return nil
}

// Stop implements pipeline.Stopper.
func (cs *ClientSessionStage) Stop() error {
	return cs.supervisor.Stop()
}

// IsResumed reports whether this connection continues a prior session's
// counters (spec.md §4.2).
func (cs *ClientSessionStage) IsResumed() bool {
	return cs.supervisor.IsResumed()
}

// SecSinceLastReceive reports elapsed seconds since the last inbound
// message, for the Heartbeat stage (spec.md §4.2).
func (cs *ClientSessionStage) SecSinceLastReceive() float64 {
	return cs.supervisor.SecSinceLastReceive()
}

// OnReceive implements pipeline.ReceiveHandler: every inbound message marks
// liveness and passes through unchanged.
func (cs *ClientSessionStage) OnReceive(msg *fixmsg.Message) (*fixmsg.Message, error) {
	cs.supervisor.MarkReceived()
	return msg, nil
}

// OnSend implements pipeline.SendHandler: the final hop before the wire.
func (cs *ClientSessionStage) OnSend(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if err := cs.writer.WriteMessage(msg); err != nil {
		return nil, pipeline.NewTransportError(err)
	}
	return msg, nil
}

func (cs *ClientSessionStage) handleUnrecoverable(err error) {
	log.WithError(err).Error("Client session transport unrecoverable, stopping pipeline")
	_ = cs.pipe.Stop()
}
