// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package fixmsg

import "time"

// NewLogon builds an outbound Logon (MsgType=A) message.
func NewLogon(heartBtInt int, resetSeqNumFlag, testMessageIndicator bool) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeLogon))
	m.SetInt(TagEncryptMethod, 0) // none; the core never negotiates encryption itself
	m.SetInt(TagHeartBtInt, heartBtInt)
	m.SetBool(TagResetSeqNumFlag, resetSeqNumFlag)
	if testMessageIndicator {
		m.SetBool(TagTestMessageIndicator, true)
	}
	return m
}

// NewHeartbeat builds a Heartbeat (MsgType=0) message, optionally echoing a
// TestReqID in response to a TestRequest.
func NewHeartbeat(testReqID string) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeHeartbeat))
	if testReqID != "" {
		m.Set(TagTestReqID, testReqID)
	}
	return m
}

// NewTestRequest builds a TestRequest (MsgType=1) message.
func NewTestRequest(testReqID string) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeTestRequest))
	m.Set(TagTestReqID, testReqID)
	return m
}

// NewResendRequest builds a ResendRequest (MsgType=2) message. endSeqNo of 0
// means "through the latest sent message" per FIX convention.
func NewResendRequest(beginSeqNo, endSeqNo int) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeResendRequest))
	m.SetInt(TagBeginSeqNo, beginSeqNo)
	m.SetInt(TagEndSeqNo, endSeqNo)
	return m
}

// NewSequenceResetGapFill builds a SequenceReset (MsgType=4) message with
// GapFillFlag set, used to collapse a run of administrative messages during
// resend servicing.
func NewSequenceResetGapFill(msgSeqNum, newSeqNo int) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeSequenceReset))
	m.SetMsgSeqNum(msgSeqNum)
	m.SetInt(TagNewSeqNo, newSeqNo)
	m.SetBool(TagGapFillFlag, true)
	m.SetPossDupFlag(true)
	return m
}

// NewLogout builds a Logout (MsgType=5) message, optionally carrying a
// human-readable reason in Text (58).
func NewLogout(reason string) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeLogout))
	if reason != "" {
		m.Set(TagText, reason)
	}
	return m
}

// NewReject builds a Reject (MsgType=3) message referencing the offending
// MsgSeqNum.
func NewReject(refSeqNum int, reason string) *Message {
	m := New()
	m.Set(TagMsgType, string(MsgTypeReject))
	m.SetInt(TagRefSeqNum, refSeqNum)
	if reason != "" {
		m.Set(TagText, reason)
	}
	return m
}

// PrepareRetransmit returns a copy of orig suitable for resend servicing:
// PossDupFlag set, OrigSendingTime copied from the original SendingTime,
// and a fresh SendingTime of now.
func PrepareRetransmit(orig *Message, now time.Time) *Message {
	c := orig.Copy()
	if origSent, ok := orig.SendingTime(); ok {
		c.Set(TagOrigSendingTime, origSent.UTC().Format("20060102-15:04:05.000"))
	}
	c.SetPossDupFlag(true)
	c.SetTime(TagSendingTime, now)
	return c
}
