// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stages provides the five built-in Pipeline stages described in
// spec.md §2 and §4: Client Session, Message Store, Authentication,
// Sequence Number Manager, and Heartbeat.
package stages

import "github.com/dtn7/fixd/pkg/fixmsg"

// PipelineHandle is the narrow, non-owning view of the owning Pipeline each
// stage is given at construction. Stages hold a back-reference to the
// pipeline for Send and Stop (spec.md §9's "cyclic pipeline references");
// modeling it as an interface rather than a concrete *pipeline.Pipeline
// keeps stages independently testable with a fake.
type PipelineHandle interface {
	// Send re-enters the pipeline's outbound path, e.g. to emit an
	// unsolicited Heartbeat or a ResendRequest.
	Send(msg *fixmsg.Message) error

	// Stop tears down every stage, e.g. after a SessionError.
	Stop() error
}
