// SPDX-FileCopyrightText: 2026 The fixd Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package fixmsg models decoded FIX messages as ordered tag=value multimaps.
//
// A Message never touches the wire; encoding and decoding to the
// tag=value|... representation is an external collaborator. Message only
// guarantees that the on-wire order of the tags it was built from is
// preserved, which the session layer relies on for checksum stability
// further down the pipeline.
package fixmsg
