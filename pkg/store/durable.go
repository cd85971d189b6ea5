// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"fmt"
	"os"
	"path"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/dtn7/fixd/pkg/fixmsg"
)

const dirBadger = "db"

// messageItem is the badgerhold-persisted record for one recorded message.
// The compound key mirrors the (session_id, direction, seq_num) contract of
// MessageStore.
type messageItem struct {
	Key       string `badgerhold:"key"`
	SessionID string `badgerholdIndex:"SessionID"`
	Direction direction
	SeqNum    int
	Fields    []persistedField
}

type persistedField struct {
	Tag   fixmsg.Tag
	Value string
}

// DurableStore persists recorded messages to an embedded badger database,
// mirroring pkg/storage.Store's badgerhold-backed persistence of bundle
// metadata. It is the MessageStore implementation cmd/fixd wires up when
// configured with a Store.Driver of "badger".
type DurableStore struct {
	bh        *badgerhold.Store
	badgerDir string
}

// NewDurableStore opens or creates a DurableStore rooted at dir.
func NewDurableStore(dir string) (*DurableStore, error) {
	badgerDir := path.Join(dir, dirBadger)

	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DurableStore{bh: bh, badgerDir: badgerDir}, nil
}

func itemKey(sessionID string, dir direction, seqNum int) string {
	d := "s"
	if dir == dirReceived {
		d = "r"
	}
	return fmt.Sprintf("%s/%s/%d", sessionID, d, seqNum)
}

func toItem(sessionID string, dir direction, msg *fixmsg.Message) messageItem {
	tags := msg.Fields()
	fields := make([]persistedField, len(tags))
	for i, t := range tags {
		v, _ := msg.Get(t)
		fields[i] = persistedField{Tag: t, Value: v}
	}
	return messageItem{
		Key:       itemKey(sessionID, dir, msg.MsgSeqNum()),
		SessionID: sessionID,
		Direction: dir,
		SeqNum:    msg.MsgSeqNum(),
		Fields:    fields,
	}
}

func fromItem(item messageItem) *fixmsg.Message {
	m := fixmsg.New()
	for _, f := range item.Fields {
		m.Set(f.Tag, f.Value)
	}
	return m
}

func (s *DurableStore) set(sessionID string, dir direction, msg *fixmsg.Message) error {
	if msg.MsgSeqNum() <= 0 {
		return nil
	}
	item := toItem(sessionID, dir, msg)

	log.WithFields(log.Fields{
		"session": sessionID,
		"seq_num": item.SeqNum,
	}).Debug("Store recording message")

	return s.bh.Insert(item.Key, item)
}

// SetSent implements MessageStore.
func (s *DurableStore) SetSent(sessionID string, msg *fixmsg.Message) error {
	return s.set(sessionID, dirSent, msg)
}

// SetReceived implements MessageStore.
func (s *DurableStore) SetReceived(sessionID string, msg *fixmsg.Message) error {
	return s.set(sessionID, dirReceived, msg)
}

func (s *DurableStore) getRange(sessionID string, dir direction, lo, hi int) ([]*fixmsg.Message, error) {
	var items []messageItem
	err := s.bh.Find(&items, badgerhold.Where("SessionID").Eq(sessionID).
		And("Direction").Eq(dir).
		And("SeqNum").Ge(lo).And("SeqNum").Le(hi))
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SeqNum < items[j].SeqNum })

	out := make([]*fixmsg.Message, len(items))
	for i, item := range items {
		out[i] = fromItem(item)
	}
	return out, nil
}

// GetSent implements MessageStore.
func (s *DurableStore) GetSent(sessionID string, lo, hi int) ([]*fixmsg.Message, error) {
	return s.getRange(sessionID, dirSent, lo, hi)
}

// GetReceived implements MessageStore.
func (s *DurableStore) GetReceived(sessionID string, lo, hi int) ([]*fixmsg.Message, error) {
	return s.getRange(sessionID, dirReceived, lo, hi)
}

func (s *DurableStore) max(sessionID string, dir direction) (int, error) {
	var items []messageItem
	err := s.bh.Find(&items, badgerhold.Where("SessionID").Eq(sessionID).And("Direction").Eq(dir))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, item := range items {
		if item.SeqNum > max {
			max = item.SeqNum
		}
	}
	return max, nil
}

// MaxSent implements MessageStore.
func (s *DurableStore) MaxSent(sessionID string) (int, error) {
	return s.max(sessionID, dirSent)
}

// MaxReceived implements MessageStore.
func (s *DurableStore) MaxReceived(sessionID string) (int, error) {
	return s.max(sessionID, dirReceived)
}

// Purge implements MessageStore.
func (s *DurableStore) Purge(sessionID string) error {
	return s.bh.DeleteMatching(&messageItem{}, badgerhold.Where("SessionID").Eq(sessionID))
}

// Close implements MessageStore.
func (s *DurableStore) Close() error {
	return s.bh.Close()
}
