// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package admin provides the optional local administrative HTTP surface
// described in spec.md §6: session health reporting and message injection,
// grounded on the reference engine's RestAgent (pkg/agent/rest_agent.go)
// and the original WTFIX RESTfulServiceApp
// (original_source/wtfix/apps/api).
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/fixsession"
	"github.com/dtn7/fixd/pkg/pipeline"
)

// Field is the admin surface's wire-agnostic representation of one tag=value
// pair. Byte-level FIX encoding is out of scope for the core (spec.md §1);
// the admin surface exchanges messages as JSON field lists instead.
type Field struct {
	Tag   fixmsg.Tag `json:"tag"`
	Value string     `json:"value"`
}

// SendRequest is the body of POST /send.
type SendRequest struct {
	Fields []Field `json:"fields"`
}

// SendResponse echoes the submitted fields back on success, per the
// original RESTfulServiceApp's echo-on-success contract
// (original_source/wtfix/apps/api test_rest.py::test_get_send).
type SendResponse struct {
	Error  string  `json:"error,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	SessionID        string  `json:"session_id"`
	State            string  `json:"state"`
	SequencingInSync bool    `json:"sequencing_in_sync"`
	SendSeqNum       int     `json:"send_seq_num"`
	ReceiveSeqNum    int     `json:"receive_seq_num"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// ResendResponse is the body of GET /sessions/{id}/resend.
type ResendResponse struct {
	Error string `json:"error,omitempty"`
}

// Server hosts the administrative HTTP surface over a running Pipeline.
type Server struct {
	router    *mux.Router
	pipe      *pipeline.Pipeline
	session   *fixsession.Session
	startedAt time.Time

	// sequencingInSync reports whether the Sequence Number Manager has no
	// pending-resend buffer entries. It is supplied by the caller rather
	// than depending on the stages package directly, keeping admin
	// independent of pipeline stage internals.
	sequencingInSync func() bool
}

// NewServer creates a Server that reports on session and routes injected
// messages into pipe's outbound path. sequencingInSync, if non-nil, backs
// the sequencing_in_sync field of GET /status.
func NewServer(pipe *pipeline.Pipeline, session *fixsession.Session, sequencingInSync func() bool) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		pipe:             pipe,
		session:          session,
		startedAt:        time.Now(),
		sequencingInSync: sequencingInSync,
	}

	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/resend", s.handleResend).Methods(http.MethodGet)

	return s
}

// Router returns the underlying *mux.Router, for embedding in an
// http.Server or for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inSync := true
	if s.sequencingInSync != nil {
		inSync = s.sequencingInSync()
	}

	resp := StatusResponse{
		SessionID:        s.session.ID(),
		State:            "running",
		SequencingInSync: inSync,
		SendSeqNum:       s.session.SendSeqNum(),
		ReceiveSeqNum:    s.session.ReceiveSeqNum(),
		UptimeSeconds:    time.Since(s.startedAt).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		req  SendRequest
		resp SendResponse
	)

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.WithError(err).Warn("Failed to parse admin send request")
		resp.Error = err.Error()
	} else {
		msg := fixmsg.New()
		for _, f := range req.Fields {
			msg.Set(f.Tag, f.Value)
		}

		if err := s.pipe.Send(msg); err != nil {
			log.WithError(err).Warn("Admin-injected message rejected by pipeline")
			resp.Error = err.Error()
		} else {
			log.WithField("msg_type", msg.MsgType()).Info("Admin injected message into outbound pipeline")
			resp.Fields = req.Fields
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Failed to write send response")
	}
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	var resp ResendResponse
	if sessionID != s.session.ID() {
		resp.Error = "unknown session id"
	} else {
		begin := s.session.ReceiveSeqNum() + 1
		if err := s.pipe.Send(fixmsg.NewResendRequest(begin, 0)); err != nil {
			resp.Error = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Failed to write resend response")
	}
}
