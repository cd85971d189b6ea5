// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"errors"
	"testing"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/store"
)

// failingStore is a store.MessageStore test double whose writes always fail,
// to exercise the Message Store stage's StoreError wrapping.
type failingStore struct {
	store.MessageStore
	err error
}

func (f *failingStore) SetSent(sessionID string, msg *fixmsg.Message) error     { return f.err }
func (f *failingStore) SetReceived(sessionID string, msg *fixmsg.Message) error { return f.err }

func TestMessageStoreOnReceiveRecordsAndPassesThrough(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewMessageStoreStage(st, "FIX.4.4:BUYER->SELLER")

	msg := fixmsg.New()
	msg.SetMsgSeqNum(1)
	got, err := m.OnReceive(msg)
	if err != nil {
		t.Fatalf("OnReceive: %v", err)
	}
	if got != msg {
		t.Fatal("OnReceive: expected message to pass through unchanged")
	}

	max, err := st.MaxReceived("FIX.4.4:BUYER->SELLER")
	if err != nil {
		t.Fatalf("MaxReceived: %v", err)
	}
	if max != 1 {
		t.Fatalf("MaxReceived() = %d, want 1", max)
	}
}

func TestMessageStoreOnSendWrapsWriteFailureAsStoreError(t *testing.T) {
	m := NewMessageStoreStage(&failingStore{err: errors.New("disk full")}, "sess")

	msg := fixmsg.New()
	msg.SetMsgSeqNum(1)
	_, err := m.OnSend(msg)

	var sessErr *pipeline.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("OnSend: err = %v, want a *pipeline.SessionError (StoreError)", err)
	}
}

func TestMessageStoreOnReceiveWrapsWriteFailureAsStoreError(t *testing.T) {
	m := NewMessageStoreStage(&failingStore{err: errors.New("disk full")}, "sess")

	msg := fixmsg.New()
	msg.SetMsgSeqNum(1)
	_, err := m.OnReceive(msg)

	var sessErr *pipeline.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("OnReceive: err = %v, want a *pipeline.SessionError (StoreError)", err)
	}
}
