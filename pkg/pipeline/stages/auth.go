// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/fixsession"
	"github.com/dtn7/fixd/pkg/pipeline"
)

// StageNameAuthentication is the stable name of the Authentication stage.
const StageNameAuthentication = "authentication"

// AuthConfig carries the parameters this side proposes on an outbound Logon
// (spec.md §4.4).
type AuthConfig struct {
	HeartBtInt           int
	ResetSeqNumFlag      bool
	TestMessageIndicator bool
}

// AuthenticationStage performs the Logon handshake: it populates the
// negotiated parameters on an outbound Logon, then validates that the
// counterparty's Logon response mirrors them, raising SessionError on any
// mismatch (spec.md §4.4). It is grounded on the reference engine's
// SessInitStage / ContactStage negotiate-then-validate structure,
// generalized from a single synchronous exchange to two independent
// message-hook callbacks.
type AuthenticationStage struct {
	session *fixsession.Session
	cfg     AuthConfig

	sentLogon bool
}

// NewAuthenticationStage creates the Authentication stage for session using cfg.
func NewAuthenticationStage(session *fixsession.Session, cfg AuthConfig) *AuthenticationStage {
	return &AuthenticationStage{session: session, cfg: cfg}
}

// Name implements pipeline.Stage.
func (a *AuthenticationStage) Name() string {
	return StageNameAuthentication
}

// SendMsgTypeHandlers implements pipeline.SendMsgTypeHandlers.
func (a *AuthenticationStage) SendMsgTypeHandlers() map[fixmsg.MsgType]pipeline.HandlerFunc {
	return map[fixmsg.MsgType]pipeline.HandlerFunc{
		fixmsg.MsgTypeLogon: a.onSendLogon,
	}
}

// ReceiveMsgTypeHandlers implements pipeline.ReceiveMsgTypeHandlers.
func (a *AuthenticationStage) ReceiveMsgTypeHandlers() map[fixmsg.MsgType]pipeline.HandlerFunc {
	return map[fixmsg.MsgType]pipeline.HandlerFunc{
		fixmsg.MsgTypeLogon: a.onReceiveLogon,
	}
}

// onSendLogon populates the negotiated parameters on the first outbound
// Logon (spec.md §4.4 "On outbound Logon (first send)").
func (a *AuthenticationStage) onSendLogon(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if a.sentLogon {
		return msg, nil
	}
	a.sentLogon = true

	msg.SetInt(fixmsg.TagHeartBtInt, a.cfg.HeartBtInt)
	msg.SetBool(fixmsg.TagResetSeqNumFlag, a.cfg.ResetSeqNumFlag)
	if a.cfg.TestMessageIndicator {
		msg.SetBool(fixmsg.TagTestMessageIndicator, true)
	}

	log.WithFields(log.Fields{
		"heartbeat_int":     a.cfg.HeartBtInt,
		"reset_seq_num":     a.cfg.ResetSeqNumFlag,
		"test_message_flag": a.cfg.TestMessageIndicator,
	}).Info("Sending Logon")

	return msg, nil
}

// onReceiveLogon validates the counterparty's Logon response mirrors the
// negotiated parameters (spec.md §4.4 "On inbound Logon (server response)").
func (a *AuthenticationStage) onReceiveLogon(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if got := msg.GetInt(fixmsg.TagHeartBtInt); got != a.cfg.HeartBtInt {
		return nil, pipeline.NewSessionError("logon HeartBtInt mismatch", fmtMismatch("HeartBtInt", a.cfg.HeartBtInt, got))
	}

	wantTestIndicator := a.cfg.TestMessageIndicator
	gotTestIndicator := msg.GetBool(fixmsg.TagTestMessageIndicator) // defaults false if absent
	if gotTestIndicator != wantTestIndicator {
		return nil, pipeline.NewSessionError("logon TestMessageIndicator mismatch", fmtMismatch("TestMessageIndicator", wantTestIndicator, gotTestIndicator))
	}

	if got := msg.GetBool(fixmsg.TagResetSeqNumFlag); got != a.cfg.ResetSeqNumFlag {
		return nil, pipeline.NewSessionError("logon ResetSeqNumFlag mismatch", fmtMismatch("ResetSeqNumFlag", a.cfg.ResetSeqNumFlag, got))
	}

	a.session.SetTestMode(gotTestIndicator)

	log.Info("Logon negotiation succeeded, session released to normal operation")

	return msg, nil
}

func fmtMismatch(field string, want, got interface{}) error {
	return fmt.Errorf("%s: expected %v, got %v", field, want, got)
}
