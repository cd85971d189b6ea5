// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"errors"
	"testing"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/transport"
)

// fakeConnector is a transport.Connector test double that never actually
// dials anything.
type fakeConnector struct {
	closed     bool
	closeErr   error
	connectErr error
}

func (c *fakeConnector) Connect() error { return c.connectErr }
func (c *fakeConnector) Closed() bool   { return c.closed }
func (c *fakeConnector) Close() error   { c.closed = true; return c.closeErr }

// fakeWriter is a MessageWriter test double.
type fakeWriter struct {
	written []*fixmsg.Message
	err     error
}

func (w *fakeWriter) WriteMessage(msg *fixmsg.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msg)
	return nil
}

func TestClientSessionOnReceiveMarksLivenessAndPassesThrough(t *testing.T) {
	supervisor := transport.NewSupervisor(&fakeConnector{}, transport.DefaultBackoffPolicy)
	cs := NewClientSessionStage(supervisor, &fakeWriter{}, &fakePipe{})

	msg := fixmsg.New()
	got, err := cs.OnReceive(msg)
	if err != nil {
		t.Fatalf("OnReceive: %v", err)
	}
	if got != msg {
		t.Fatal("OnReceive: expected message to pass through unchanged")
	}
	if cs.SecSinceLastReceive() < 0 {
		t.Fatalf("SecSinceLastReceive() = %v, want >= 0 after MarkReceived", cs.SecSinceLastReceive())
	}
}

func TestClientSessionOnSendWritesToWire(t *testing.T) {
	writer := &fakeWriter{}
	supervisor := transport.NewSupervisor(&fakeConnector{}, transport.DefaultBackoffPolicy)
	cs := NewClientSessionStage(supervisor, writer, &fakePipe{})

	msg := fixmsg.New()
	if _, err := cs.OnSend(msg); err != nil {
		t.Fatalf("OnSend: %v", err)
	}
	if len(writer.written) != 1 || writer.written[0] != msg {
		t.Fatalf("writer.written = %v, want [msg]", writer.written)
	}
}

func TestClientSessionOnSendWrapsWriteFailureAsTransportError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broken pipe")}
	supervisor := transport.NewSupervisor(&fakeConnector{}, transport.DefaultBackoffPolicy)
	cs := NewClientSessionStage(supervisor, writer, &fakePipe{})

	_, err := cs.OnSend(fixmsg.New())
	var transportErr *pipeline.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("OnSend: err = %v, want a *pipeline.TransportError", err)
	}
}
