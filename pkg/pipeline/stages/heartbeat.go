// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
)

// StageNameHeartbeat is the stable name of the Heartbeat stage.
const StageNameHeartbeat = "heartbeat"

// tickFloor is the minimum real polling interval used when the configured
// HeartBtInt is zero, as in test-mode sessions that simulate their own
// traffic cadence (spec.md §4.5 scenario S2/S3); it keeps the monitor loop
// from spinning on a zero-duration ticker.
const tickFloor = 500 * time.Millisecond

// LivenessSource reports how long since the last inbound message was seen,
// the signal the Heartbeat stage polls (spec.md §4.5, satisfied by
// ClientSessionStage.SecSinceLastReceive).
type LivenessSource interface {
	SecSinceLastReceive() float64
}

// HeartbeatConfig carries the negotiated heartbeat interval and the
// counterparty liveness threshold (spec.md §6 HEARTBEAT_INT,
// MAX_LOST_HEARTBEATS).
type HeartbeatConfig struct {
	HeartBtInt        int
	MaxLostHeartbeats int
}

// HeartbeatStage monitors counterparty liveness and answers TestRequests,
// generalizing the reference engine's keepalive ticker
// (tcpclv4/internal/stages/sess_established.go's handleKeepalive) from a
// single KEEPALIVE message type into FIX's TestRequest/Heartbeat round trip
// with a strikes counter (spec.md §4.5).
type HeartbeatStage struct {
	cfg      HeartbeatConfig
	liveness LivenessSource
	pipe     PipelineHandle

	mu             sync.Mutex
	pendingTestID  string
	missed         int
	testReqCounter int

	stopCh  chan struct{}
	doneCh  chan struct{}
	resetCh chan struct{}
}

// NewHeartbeatStage creates the Heartbeat stage. liveness reports elapsed
// time since the last inbound message; pipe is used to emit TestRequests
// and Heartbeats and to stop the pipeline once the counterparty is declared
// dead.
func NewHeartbeatStage(cfg HeartbeatConfig, liveness LivenessSource, pipe PipelineHandle) *HeartbeatStage {
	if cfg.MaxLostHeartbeats <= 0 {
		cfg.MaxLostHeartbeats = 3
	}
	return &HeartbeatStage{cfg: cfg, liveness: liveness, pipe: pipe}
}

// Name implements pipeline.Stage.
func (h *HeartbeatStage) Name() string {
	return StageNameHeartbeat
}

// Start implements pipeline.Starter, beginning the monitor loop.
func (h *HeartbeatStage) Start() error {
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.resetCh = make(chan struct{}, 1)
	go h.run()
	return nil
}

// UpdateConfig applies a new HeartbeatConfig to a running stage, e.g. after
// cmd/fixd's fsnotify watcher detects an edited configuration file
// (spec.md §6 HEARTBEAT_INT, MAX_LOST_HEARTBEATS). It does not reset the
// strikes counter or any outstanding TestRequest.
func (h *HeartbeatStage) UpdateConfig(cfg HeartbeatConfig) {
	if cfg.MaxLostHeartbeats <= 0 {
		cfg.MaxLostHeartbeats = 3
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	select {
	case h.resetCh <- struct{}{}:
	default:
	}
}

// Stop implements pipeline.Stopper.
func (h *HeartbeatStage) Stop() error {
	if h.stopCh == nil {
		return nil
	}
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	<-h.doneCh
	return nil
}

func (h *HeartbeatStage) interval() time.Duration {
	h.mu.Lock()
	heartBtInt := h.cfg.HeartBtInt
	h.mu.Unlock()

	if heartBtInt <= 0 {
		return tickFloor
	}
	return time.Duration(heartBtInt) * time.Second
}

func (h *HeartbeatStage) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-h.resetCh:
			ticker.Stop()
			ticker = time.NewTicker(h.interval())
		case <-ticker.C:
			if dead := h.onTick(); dead {
				h.mu.Lock()
				maxLost := h.cfg.MaxLostHeartbeats
				h.mu.Unlock()
				log.WithField("max_lost_heartbeats", maxLost).
					Error("Counterparty not responding, stopping pipeline")
				// Stop the pipeline from another goroutine: stopping it
				// calls h.Stop, which waits for this loop to return.
				go func() { _ = h.pipe.Stop() }()
				return
			}
		}
	}
}

// onTick evaluates liveness on one tick and returns true once
// MAX_LOST_HEARTBEATS consecutive TestRequests have gone unanswered
// (spec.md §4.5 "On heartbeat timer", §8 invariant 6).
func (h *HeartbeatStage) onTick() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pendingTestID == "" {
		secSince := h.liveness.SecSinceLastReceive()
		if secSince <= float64(h.cfg.HeartBtInt) {
			return false
		}
		h.sendTestRequestLocked()
		return false
	}

	h.missed++
	if h.missed >= h.cfg.MaxLostHeartbeats {
		return true
	}
	h.sendTestRequestLocked()
	return false
}

func (h *HeartbeatStage) sendTestRequestLocked() {
	h.testReqCounter++
	id := fmt.Sprintf("TR%d", h.testReqCounter)
	h.pendingTestID = id

	if err := h.pipe.Send(fixmsg.NewTestRequest(id)); err != nil {
		log.WithError(err).Warn("Failed to send TestRequest")
	}
}

// ReceiveMsgTypeHandlers implements pipeline.ReceiveMsgTypeHandlers.
func (h *HeartbeatStage) ReceiveMsgTypeHandlers() map[fixmsg.MsgType]pipeline.HandlerFunc {
	return map[fixmsg.MsgType]pipeline.HandlerFunc{
		fixmsg.MsgTypeTestRequest: h.onReceiveTestRequest,
		fixmsg.MsgTypeHeartbeat:   h.onReceiveHeartbeat,
	}
}

// onReceiveTestRequest answers the counterparty's liveness check by echoing
// its TestReqID on a Heartbeat (spec.md §4.5 "On inbound TestRequest"). The
// TestRequest itself is session-layer plumbing and goes no further up the
// pipeline.
func (h *HeartbeatStage) onReceiveTestRequest(msg *fixmsg.Message) (*fixmsg.Message, error) {
	testReqID, _ := msg.Get(fixmsg.TagTestReqID)
	if err := h.pipe.Send(fixmsg.NewHeartbeat(testReqID)); err != nil {
		return nil, err
	}
	return nil, pipeline.ErrStopMessageProcessing
}

// onReceiveHeartbeat clears the outstanding TestRequest once its echo
// arrives, resetting the strikes counter (spec.md §4.5 "On inbound
// Heartbeat").
func (h *HeartbeatStage) onReceiveHeartbeat(msg *fixmsg.Message) (*fixmsg.Message, error) {
	testReqID, _ := msg.Get(fixmsg.TagTestReqID)

	h.mu.Lock()
	if testReqID != "" && testReqID == h.pendingTestID {
		h.pendingTestID = ""
		h.missed = 0
	}
	h.mu.Unlock()

	return msg, nil
}
