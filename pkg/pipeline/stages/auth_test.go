// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"errors"
	"testing"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
)

func TestAuthenticationOnSendLogonPopulatesNegotiatedFields(t *testing.T) {
	session := newTestSession(false)
	cfg := AuthConfig{HeartBtInt: 30, ResetSeqNumFlag: true, TestMessageIndicator: true}
	a := NewAuthenticationStage(session, cfg)

	msg := fixmsg.NewLogon(0, false, false) // caller-supplied values get overwritten
	got, err := a.onSendLogon(msg)
	if err != nil {
		t.Fatalf("onSendLogon: %v", err)
	}
	if got.GetInt(fixmsg.TagHeartBtInt) != 30 {
		t.Errorf("HeartBtInt = %d, want 30", got.GetInt(fixmsg.TagHeartBtInt))
	}
	if !got.GetBool(fixmsg.TagResetSeqNumFlag) {
		t.Error("ResetSeqNumFlag not set")
	}
	if !got.GetBool(fixmsg.TagTestMessageIndicator) {
		t.Error("TestMessageIndicator not set")
	}
}

func TestAuthenticationOnSendLogonOnlyPopulatesFirstLogon(t *testing.T) {
	session := newTestSession(false)
	a := NewAuthenticationStage(session, AuthConfig{HeartBtInt: 30})

	first := fixmsg.NewLogon(30, false, false)
	if _, err := a.onSendLogon(first); err != nil {
		t.Fatalf("onSendLogon (first): %v", err)
	}

	// A second outbound Logon (e.g. a retransmit) must not be re-stamped,
	// since onSendLogon only negotiates once per stage lifetime.
	second := fixmsg.New()
	second.Set(fixmsg.TagMsgType, string(fixmsg.MsgTypeLogon))
	got, err := a.onSendLogon(second)
	if err != nil {
		t.Fatalf("onSendLogon (second): %v", err)
	}
	if got.GetInt(fixmsg.TagHeartBtInt) != 0 {
		t.Errorf("second Logon was re-stamped: HeartBtInt = %d, want 0 (untouched)", got.GetInt(fixmsg.TagHeartBtInt))
	}
}

func TestAuthenticationOnReceiveLogonHeartBtIntMismatch(t *testing.T) {
	session := newTestSession(false)
	a := NewAuthenticationStage(session, AuthConfig{HeartBtInt: 60, ResetSeqNumFlag: true})

	reply := fixmsg.NewLogon(30, true, false) // counterparty proposes 30, not 60
	_, err := a.onReceiveLogon(reply)
	if err == nil {
		t.Fatal("onReceiveLogon: expected SessionError on HeartBtInt mismatch, got nil")
	}
	var sessErr *pipeline.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("onReceiveLogon: err = %v, want a *pipeline.SessionError", err)
	}
}

func TestAuthenticationOnReceiveLogonTestMessageIndicatorMismatch(t *testing.T) {
	session := newTestSession(false)
	a := NewAuthenticationStage(session, AuthConfig{HeartBtInt: 30, TestMessageIndicator: true})

	reply := fixmsg.NewLogon(30, false, false) // counterparty omits TestMessageIndicator
	_, err := a.onReceiveLogon(reply)
	var sessErr *pipeline.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("onReceiveLogon: err = %v, want a *pipeline.SessionError for TestMessageIndicator mismatch", err)
	}
}

func TestAuthenticationOnReceiveLogonResetSeqNumFlagMismatch(t *testing.T) {
	session := newTestSession(false)
	a := NewAuthenticationStage(session, AuthConfig{HeartBtInt: 30, ResetSeqNumFlag: true})

	reply := fixmsg.NewLogon(30, false, false) // counterparty doesn't confirm reset
	_, err := a.onReceiveLogon(reply)
	var sessErr *pipeline.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("onReceiveLogon: err = %v, want a *pipeline.SessionError for ResetSeqNumFlag mismatch", err)
	}
}

func TestAuthenticationOnReceiveLogonSuccessSetsTestMode(t *testing.T) {
	session := newTestSession(false)
	a := NewAuthenticationStage(session, AuthConfig{HeartBtInt: 30, TestMessageIndicator: true})

	reply := fixmsg.NewLogon(30, false, true)
	if _, err := a.onReceiveLogon(reply); err != nil {
		t.Fatalf("onReceiveLogon: %v", err)
	}
	if !session.TestMode() {
		t.Error("session.TestMode() = false, want true after matching Logon negotiation")
	}
}
