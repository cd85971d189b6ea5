// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package fixmsg

import (
	"fmt"
	"time"
)

// field is a single tag=value pair in on-wire order.
type field struct {
	tag   Tag
	value string
}

// Message is an ordered multimap of tag to value, together with any
// repeating groups nested beneath a group-count tag. The zero value is not
// usable; build one with New or one of the admin constructors.
//
// Message is not safe for concurrent mutation. Once handed to another
// pipeline stage or the store, treat it as immutable and Copy before
// changing it.
type Message struct {
	fields []field
	index  map[Tag]int // last-write-wins index into fields, for O(1) Get/Set
	groups map[Tag][]*Message
}

// New creates an empty Message.
func New() *Message {
	return &Message{
		index:  make(map[Tag]int),
		groups: make(map[Tag][]*Message),
	}
}

// Set assigns value to tag, preserving the position of the first
// occurrence of tag and appending new tags in call order.
func (m *Message) Set(tag Tag, value string) *Message {
	if i, ok := m.index[tag]; ok {
		m.fields[i].value = value
		return m
	}
	m.index[tag] = len(m.fields)
	m.fields = append(m.fields, field{tag: tag, value: value})
	return m
}

// SetInt is a convenience wrapper around Set for integer-valued tags.
func (m *Message) SetInt(tag Tag, value int) *Message {
	return m.Set(tag, fmt.Sprintf("%d", value))
}

// SetTime is a convenience wrapper around Set for FIX UTCTimestamp tags
// (millisecond resolution, per spec.md §3).
func (m *Message) SetTime(tag Tag, t time.Time) *Message {
	return m.Set(tag, t.UTC().Format("20060102-15:04:05.000"))
}

// Get returns the value of tag and whether it was present.
func (m *Message) Get(tag Tag) (string, bool) {
	i, ok := m.index[tag]
	if !ok {
		return "", false
	}
	return m.fields[i].value, true
}

// GetInt returns the integer value of tag, or 0 if absent or malformed.
func (m *Message) GetInt(tag Tag) int {
	v, ok := m.Get(tag)
	if !ok {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(v, "%d", &n)
	return n
}

// GetBool returns the boolean value of tag ("Y" is true, anything else
// false), or false if absent.
func (m *Message) GetBool(tag Tag) bool {
	v, ok := m.Get(tag)
	return ok && v == "Y"
}

// SetBool assigns a FIX boolean ("Y"/"N") to tag.
func (m *Message) SetBool(tag Tag, value bool) *Message {
	if value {
		return m.Set(tag, "Y")
	}
	return m.Set(tag, "N")
}

// GetTime parses the UTCTimestamp value of tag.
func (m *Message) GetTime(tag Tag) (time.Time, bool) {
	v, ok := m.Get(tag)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102-15:04:05.000", v)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Has reports whether tag is present.
func (m *Message) Has(tag Tag) bool {
	_, ok := m.index[tag]
	return ok
}

// SetGroup attaches a repeating group of nested Messages under tag.
func (m *Message) SetGroup(tag Tag, entries []*Message) *Message {
	m.groups[tag] = entries
	return m
}

// Group returns the repeating group nested under tag, if any.
func (m *Message) Group(tag Tag) ([]*Message, bool) {
	g, ok := m.groups[tag]
	return g, ok
}

// Fields returns the top-level tags in on-wire order. Callers must not
// mutate the returned slice.
func (m *Message) Fields() []Tag {
	tags := make([]Tag, len(m.fields))
	for i, f := range m.fields {
		tags[i] = f.tag
	}
	return tags
}

// MsgType returns the message's tag-35 category code.
func (m *Message) MsgType() MsgType {
	v, _ := m.Get(TagMsgType)
	return MsgType(v)
}

// MsgSeqNum returns tag 34.
func (m *Message) MsgSeqNum() int {
	return m.GetInt(TagMsgSeqNum)
}

// SetMsgSeqNum assigns tag 34.
func (m *Message) SetMsgSeqNum(n int) *Message {
	return m.SetInt(TagMsgSeqNum, n)
}

// SenderCompID returns tag 49.
func (m *Message) SenderCompID() string {
	v, _ := m.Get(TagSenderCompID)
	return v
}

// TargetCompID returns tag 56.
func (m *Message) TargetCompID() string {
	v, _ := m.Get(TagTargetCompID)
	return v
}

// SendingTime returns tag 52.
func (m *Message) SendingTime() (time.Time, bool) {
	return m.GetTime(TagSendingTime)
}

// PossDupFlag returns tag 43.
func (m *Message) PossDupFlag() bool {
	return m.GetBool(TagPossDupFlag)
}

// SetPossDupFlag assigns tag 43.
func (m *Message) SetPossDupFlag(v bool) *Message {
	return m.SetBool(TagPossDupFlag, v)
}

// OrigSendingTime returns tag 122.
func (m *Message) OrigSendingTime() (time.Time, bool) {
	return m.GetTime(TagOrigSendingTime)
}

// Copy returns a deep-enough copy of m suitable for mutating (e.g. to
// retransmit with a new PossDupFlag) without disturbing the original,
// which may still be referenced by the store.
func (m *Message) Copy() *Message {
	c := New()
	c.fields = append([]field(nil), m.fields...)
	for tag, i := range m.index {
		c.index[tag] = i
	}
	for tag, entries := range m.groups {
		copied := make([]*Message, len(entries))
		for i, e := range entries {
			copied[i] = e.Copy()
		}
		c.groups[tag] = copied
	}
	return c
}

// String renders a Message for logging; it is not the wire format.
func (m *Message) String() string {
	return fmt.Sprintf("Message{MsgType=%s, MsgSeqNum=%d, SenderCompID=%s, TargetCompID=%s}",
		m.MsgType(), m.MsgSeqNum(), m.SenderCompID(), m.TargetCompID())
}
