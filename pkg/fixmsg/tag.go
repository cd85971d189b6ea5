// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package fixmsg

// Tag is a FIX field tag number.
type Tag int

// Header and session-layer tags used by the core. Application tags are
// opaque to this package; it only inspects the ones it must to do its job.
const (
	TagMsgType        Tag = 35
	TagMsgSeqNum      Tag = 34
	TagSenderCompID   Tag = 49
	TagTargetCompID   Tag = 56
	TagSendingTime    Tag = 52
	TagPossDupFlag    Tag = 43
	TagOrigSendingTime Tag = 122
	TagBeginString    Tag = 8
	TagBodyLength     Tag = 9
	TagCheckSum       Tag = 10

	TagEncryptMethod        Tag = 98
	TagHeartBtInt           Tag = 108
	TagTestReqID            Tag = 112
	TagBeginSeqNo           Tag = 7
	TagEndSeqNo             Tag = 16
	TagNewSeqNo             Tag = 36
	TagGapFillFlag          Tag = 123
	TagResetSeqNumFlag      Tag = 141
	TagTestMessageIndicator Tag = 464
	TagRefSeqNum            Tag = 45
	TagSessionRejectReason  Tag = 373
	TagText                 Tag = 58
)

// MsgType is the administrative/application category code carried in tag 35.
type MsgType string

// Administrative message type codes recognized by the core (spec.md §6).
const (
	MsgTypeLogon         MsgType = "A"
	MsgTypeHeartbeat     MsgType = "0"
	MsgTypeTestRequest   MsgType = "1"
	MsgTypeResendRequest MsgType = "2"
	MsgTypeReject        MsgType = "3"
	MsgTypeSequenceReset MsgType = "4"
	MsgTypeLogout        MsgType = "5"
)

// adminMsgTypes is the set of message types the Sequence Number Manager
// never retransmits individually on a ResendRequest; it collapses
// contiguous runs of these into a SequenceReset-GapFill instead.
var adminMsgTypes = map[MsgType]bool{
	MsgTypeLogon:         true,
	MsgTypeHeartbeat:     true,
	MsgTypeTestRequest:   true,
	MsgTypeResendRequest: true,
	MsgTypeReject:        true,
	MsgTypeSequenceReset: true,
	MsgTypeLogout:        true,
}

// IsAdmin reports whether t is one of the session-layer administrative
// message types.
func IsAdmin(t MsgType) bool {
	return adminMsgTypes[t]
}
