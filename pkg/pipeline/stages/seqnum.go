// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/fixsession"
	"github.com/dtn7/fixd/pkg/pipeline"
	"github.com/dtn7/fixd/pkg/store"
)

// StageNameSeqNumManager is the stable name of the Sequence Number Manager
// stage.
const StageNameSeqNumManager = "seq_num_manager"

// resendRange is a span of the counterparty's outbound ResendRequest still
// awaiting service, queued when a service run is already in flight (spec.md
// §4.6 Open Question: concurrent ResendRequests are serviced in the order
// received, one at a time).
type resendRange struct {
	beginSeqNo int
	endSeqNo   int // 0 means "through the latest sent message"
}

// SeqNumManagerStage assigns outbound MsgSeqNum, detects gaps and
// duplicates on the inbound path, and services ResendRequests. It is
// grounded on wtfix's TestSeqNumManagerApp scenarios and generalizes the
// reference engine's routing/core sequence bookkeeping into a dedicated
// stage (spec.md §4.6, the largest single subsystem per spec.md §2).
type SeqNumManagerStage struct {
	session *fixsession.Session
	st      store.MessageStore
	pipe    PipelineHandle

	mu sync.Mutex

	// pendingResend buffers inbound messages with seq_num ahead of the
	// expected counter, keyed by seq_num, until the gap is filled.
	pendingResend map[int]*fixmsg.Message
	// resendOutstanding is set once this side has emitted a ResendRequest
	// for a detected gap, so a second gap observed before the gap fills
	// does not trigger a duplicate request.
	resendOutstanding bool

	// servicing is true while a ResendRequest is being serviced, so a
	// second inbound ResendRequest is queued rather than interleaved.
	servicing    bool
	serviceQueue []resendRange

	ready []*fixmsg.Message
}

// NewSeqNumManagerStage creates the Sequence Number Manager stage over
// session and st. pipe is used to emit ResendRequests and retransmissions
// outside the normal Send path.
func NewSeqNumManagerStage(session *fixsession.Session, st store.MessageStore, pipe PipelineHandle) *SeqNumManagerStage {
	return &SeqNumManagerStage{
		session:       session,
		st:            st,
		pipe:          pipe,
		pendingResend: make(map[int]*fixmsg.Message),
	}
}

// Name implements pipeline.Stage.
func (m *SeqNumManagerStage) Name() string {
	return StageNameSeqNumManager
}

// Start implements pipeline.Starter: it resumes the session's counters from
// the store's high-water marks, or leaves them at zero for a fresh session
// (spec.md §4.6 Startup).
func (m *SeqNumManagerStage) Start() error {
	sent, err := m.st.MaxSent(m.session.ID())
	if err != nil {
		return pipeline.NewStoreError(err)
	}
	received, err := m.st.MaxReceived(m.session.ID())
	if err != nil {
		return pipeline.NewStoreError(err)
	}

	if m.session.IsResumed() {
		m.session.SetSeqNums(sent, received)
		log.WithFields(log.Fields{"send_seq_num": sent, "receive_seq_num": received}).
			Info("Sequence Number Manager resuming session")
	} else {
		m.session.SetSeqNums(0, 0)
		log.Info("Sequence Number Manager starting fresh session")
	}
	return nil
}

// OnSend implements pipeline.SendHandler: it assigns the next MsgSeqNum to
// every outbound message that does not already carry one, so resend-path
// messages built with fixmsg.PrepareRetransmit keep their original number
// (spec.md §4.6 "On outbound message").
func (m *SeqNumManagerStage) OnSend(msg *fixmsg.Message) (*fixmsg.Message, error) {
	if msg.MsgSeqNum() > 0 {
		return msg, nil
	}
	msg.SetMsgSeqNum(m.session.NextSendSeqNum())
	return msg, nil
}

// ReceiveMsgTypeHandlers implements pipeline.ReceiveMsgTypeHandlers.
func (m *SeqNumManagerStage) ReceiveMsgTypeHandlers() map[fixmsg.MsgType]pipeline.HandlerFunc {
	return map[fixmsg.MsgType]pipeline.HandlerFunc{
		fixmsg.MsgTypeResendRequest: m.onReceiveResendRequest,
	}
}

// OnReceive implements pipeline.ReceiveHandler, the general gap-detection
// path applied to every inbound message, administrative or application
// (spec.md §4.6 "On inbound message").
func (m *SeqNumManagerStage) OnReceive(msg *fixmsg.Message) (*fixmsg.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := msg.MsgSeqNum()
	expected := m.session.ReceiveSeqNum() + 1

	switch {
	case n == expected:
		m.session.AdvanceReceiveSeqNum()
		m.collectReady()
		return msg, nil

	case n > expected:
		log.WithFields(log.Fields{"expected": expected, "got": n}).Warn("Sequence gap detected")
		m.pendingResend[n] = msg

		if !m.resendOutstanding {
			m.resendOutstanding = true
			req := fixmsg.NewResendRequest(expected, 0)
			if err := m.pipe.Send(req); err != nil {
				return nil, err
			}
		}
		return nil, pipeline.ErrStopMessageProcessing

	default: // n < expected: a message we've already processed, or a resend.
		if err := m.checkPossDup(msg); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

// collectReady moves any buffered messages that are now contiguous with the
// receive counter out of pendingResend and into ready, to be delivered by
// the Pipeline's drain pass once the triggering message finishes
// propagating (spec.md §4.6, resolving the ordering hazard of draining
// from within OnReceive itself).
func (m *SeqNumManagerStage) collectReady() {
	for {
		next := m.session.ReceiveSeqNum() + 1
		buffered, ok := m.pendingResend[next]
		if !ok {
			break
		}
		delete(m.pendingResend, next)
		m.session.AdvanceReceiveSeqNum()
		m.ready = append(m.ready, buffered)
	}
	if len(m.pendingResend) == 0 {
		m.resendOutstanding = false
	}
}

// IsSequencingInSync reports whether the pending-resend buffer is empty,
// i.e. no gap is currently outstanding. Exposed for the admin surface's
// GET /status (spec.md §6).
func (m *SeqNumManagerStage) IsSequencingInSync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingResend) == 0
}

// TakeReady implements pipeline.DrainSource.
func (m *SeqNumManagerStage) TakeReady() []*fixmsg.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.ready
	m.ready = nil
	return out
}

// checkPossDup validates that a message with a seq_num below the expected
// counter is properly flagged as a retransmission, per spec.md §4.6's
// resolved Open Question: PossDup messages forward with the flag preserved
// rather than being silently dropped, leaving disposition to the
// application.
func (m *SeqNumManagerStage) checkPossDup(msg *fixmsg.Message) error {
	if !msg.PossDupFlag() {
		return pipeline.NewSessionError("seq_num below expected without PossDupFlag", nil)
	}

	orig, hasOrig := msg.OrigSendingTime()
	sent, hasSent := msg.SendingTime()
	if hasOrig && hasSent && orig.After(sent) {
		return pipeline.NewSessionError("OrigSendingTime after SendingTime on PossDup message", nil)
	}
	return nil
}

// onReceiveResendRequest handles an inbound ResendRequest, servicing it
// immediately if no service run is already in flight, or queuing it
// otherwise (spec.md §4.6 "On inbound ResendRequest").
func (m *SeqNumManagerStage) onReceiveResendRequest(msg *fixmsg.Message) (*fixmsg.Message, error) {
	r := resendRange{
		beginSeqNo: msg.GetInt(fixmsg.TagBeginSeqNo),
		endSeqNo:   msg.GetInt(fixmsg.TagEndSeqNo),
	}

	m.mu.Lock()
	if m.servicing {
		m.serviceQueue = append(m.serviceQueue, r)
		m.mu.Unlock()
		return nil, pipeline.ErrStopMessageProcessing
	}
	m.servicing = true
	m.mu.Unlock()

	if err := m.runService(r); err != nil {
		return nil, err
	}
	return nil, pipeline.ErrStopMessageProcessing
}

// runService services r and then drains any ranges queued while it ran,
// one at a time, until the queue is empty.
func (m *SeqNumManagerStage) runService(r resendRange) error {
	for {
		if err := m.serviceResend(r); err != nil {
			m.mu.Lock()
			m.servicing = false
			m.mu.Unlock()
			return err
		}

		m.mu.Lock()
		if len(m.serviceQueue) == 0 {
			m.servicing = false
			m.mu.Unlock()
			return nil
		}
		r = m.serviceQueue[0]
		m.serviceQueue = m.serviceQueue[1:]
		m.mu.Unlock()
	}
}

// serviceResend retransmits the requested range: contiguous runs of
// administrative message types collapse into a single SequenceReset-GapFill,
// and application messages are retransmitted individually with PossDupFlag
// set (spec.md §4.6 "Servicing a ResendRequest").
func (m *SeqNumManagerStage) serviceResend(r resendRange) error {
	end := r.endSeqNo
	if end == 0 {
		sent, err := m.st.MaxSent(m.session.ID())
		if err != nil {
			return pipeline.NewStoreError(err)
		}
		end = sent
	}
	if end < r.beginSeqNo {
		return nil
	}

	msgs, err := m.st.GetSent(m.session.ID(), r.beginSeqNo, end)
	if err != nil {
		return pipeline.NewStoreError(err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].MsgSeqNum() < msgs[j].MsgSeqNum() })

	now := time.Now()

	runStart := -1
	flushAdminRun := func(upto int) error {
		if runStart < 0 {
			return nil
		}
		gapFill := fixmsg.NewSequenceResetGapFill(runStart, upto+1)
		runStart = -1
		return m.pipe.Send(gapFill)
	}

	for _, orig := range msgs {
		n := orig.MsgSeqNum()
		if fixmsg.IsAdmin(orig.MsgType()) {
			if runStart < 0 {
				runStart = n
			}
			continue
		}

		if err := flushAdminRun(n - 1); err != nil {
			return err
		}

		retrans := fixmsg.PrepareRetransmit(orig, now)
		if err := m.pipe.Send(retrans); err != nil {
			return err
		}
	}

	return flushAdminRun(end)
}
