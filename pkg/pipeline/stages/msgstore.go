// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/store"
)

// StageNameMessageStore is the stable name of the Message Store stage.
const StageNameMessageStore = "message_store"

// MessageStoreStage records every sent and received message into a
// store.MessageStore, second in transport→application order so that every
// message reaching Authentication or the Sequence Number Manager is
// already durable (spec.md §2, §4.3).
type MessageStoreStage struct {
	store     store.MessageStore
	sessionID string
}

// NewMessageStoreStage creates the Message Store stage over st, recording
// entries under sessionID.
func NewMessageStoreStage(st store.MessageStore, sessionID string) *MessageStoreStage {
	return &MessageStoreStage{store: st, sessionID: sessionID}
}

// Name implements pipeline.Stage.
func (m *MessageStoreStage) Name() string {
	return StageNameMessageStore
}

// Store returns the underlying MessageStore, for stages that need to query
// ranges directly (the Sequence Number Manager's resend servicing).
func (m *MessageStoreStage) Store() store.MessageStore {
	return m.store
}

// OnReceive implements pipeline.ReceiveHandler.
func (m *MessageStoreStage) OnReceive(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if err := m.store.SetReceived(m.sessionID, msg); err != nil {
		log.WithError(err).WithField("seq_num", msg.MsgSeqNum()).Error("Failed to record received message")
		return nil, pipeline.NewStoreError(err)
	}
	return msg, nil
}

// OnSend implements pipeline.SendHandler.
func (m *MessageStoreStage) OnSend(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if err := m.store.SetSent(m.sessionID, msg); err != nil {
		log.WithError(err).WithField("seq_num", msg.MsgSeqNum()).Error("Failed to record sent message")
		return nil, pipeline.NewStoreError(err)
	}
	return msg, nil
}

// Stop implements pipeline.Stopper, releasing the underlying store.
func (m *MessageStoreStage) Stop() error {
	return m.store.Close()
}
