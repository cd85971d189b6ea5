// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stages

import (
	"testing"

	"github.com/dtn7/fixd/pkg/fixmsg"
	"github.com/dtn7/fixd/pkg/pipeline"
)

// fakeLiveness reports a fixed elapsed-time-since-last-receive, letting
// tests drive onTick deterministically instead of depending on the real
// monitor loop's ticker.
type fakeLiveness struct {
	secSince float64
}

func (f *fakeLiveness) SecSinceLastReceive() float64 { return f.secSince }

func TestHeartbeatNoTestRequestsUnderContinuousTraffic(t *testing.T) {
	liveness := &fakeLiveness{secSince: 0}
	pipe := &fakePipe{}
	h := NewHeartbeatStage(HeartbeatConfig{HeartBtInt: 0, MaxLostHeartbeats: 3}, liveness, pipe)

	for i := 0; i < 5; i++ {
		if dead := h.onTick(); dead {
			t.Fatalf("onTick() #%d reported dead under continuous traffic", i)
		}
	}

	if pipe.sentCount() != 0 {
		t.Fatalf("sent count = %d, want 0 (no TestRequests while traffic is current)", pipe.sentCount())
	}
}

func TestHeartbeatStopsAfterMaxLostHeartbeats(t *testing.T) {
	liveness := &fakeLiveness{secSince: 100} // always overdue, counterparty silent
	pipe := &fakePipe{}
	h := NewHeartbeatStage(HeartbeatConfig{HeartBtInt: 30, MaxLostHeartbeats: 3}, liveness, pipe)

	for i := 1; i <= 3; i++ {
		if dead := h.onTick(); dead {
			t.Fatalf("onTick() #%d reported dead too early", i)
		}
		if pipe.sentCount() != i {
			t.Fatalf("sent count after tick %d = %d, want %d", i, pipe.sentCount(), i)
		}
	}

	if dead := h.onTick(); !dead {
		t.Fatal("onTick() #4: expected dead=true after MAX_LOST_HEARTBEATS unanswered TestRequests")
	}
	if pipe.sentCount() != 3 {
		t.Fatalf("sent count after declaring dead = %d, want 3 (no further TestRequest sent)", pipe.sentCount())
	}
}

func TestHeartbeatRoundTripResetsStrikes(t *testing.T) {
	liveness := &fakeLiveness{secSince: 100}
	pipe := &fakePipe{}
	h := NewHeartbeatStage(HeartbeatConfig{HeartBtInt: 30, MaxLostHeartbeats: 3}, liveness, pipe)

	if dead := h.onTick(); dead {
		t.Fatal("onTick(): unexpectedly dead")
	}
	first := pipe.last()
	testReqID, _ := first.Get(fixmsg.TagTestReqID)

	if _, err := h.onReceiveHeartbeat(fixmsg.NewHeartbeat(testReqID)); err != nil {
		t.Fatalf("onReceiveHeartbeat: %v", err)
	}

	h.mu.Lock()
	missed, pending := h.missed, h.pendingTestID
	h.mu.Unlock()
	if missed != 0 || pending != "" {
		t.Fatalf("after matching Heartbeat: missed=%d pendingTestID=%q, want 0, \"\"", missed, pending)
	}

	// A further tick starts a fresh TestRequest cycle rather than
	// continuing to count strikes against the answered one.
	for i := 1; i <= 3; i++ {
		if dead := h.onTick(); dead {
			t.Fatalf("onTick() #%d reported dead too early after reset", i)
		}
	}
	if dead := h.onTick(); !dead {
		t.Fatal("onTick(): expected dead=true after a fresh run of MAX_LOST_HEARTBEATS strikes")
	}
}

func TestHeartbeatAnswersTestRequestByEchoingID(t *testing.T) {
	pipe := &fakePipe{}
	h := NewHeartbeatStage(HeartbeatConfig{HeartBtInt: 30}, &fakeLiveness{}, pipe)

	req := fixmsg.NewTestRequest("PEER-TR1")
	if _, err := h.onReceiveTestRequest(req); err != pipeline.ErrStopMessageProcessing {
		t.Fatalf("onReceiveTestRequest: err = %v, want ErrStopMessageProcessing (admin message, not forwarded upstream)", err)
	}

	if pipe.sentCount() != 1 {
		t.Fatalf("sent count = %d, want 1", pipe.sentCount())
	}
	hb := pipe.last()
	if hb.MsgType() != fixmsg.MsgTypeHeartbeat {
		t.Fatalf("reply MsgType() = %q, want Heartbeat", hb.MsgType())
	}
	if id, _ := hb.Get(fixmsg.TagTestReqID); id != "PEER-TR1" {
		t.Fatalf("reply TestReqID = %q, want PEER-TR1", id)
	}
}
