// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared CBOR configuration for binary
// variable payloads.
//
// The remote room service stores every variable as a string. Most
// payloads are plain text (names, numbers, JSON). Structured payloads
// that are large or binary are encoded as CBOR here, optionally
// compressed by lib/compress, and carried base64url-encoded inside the
// remote string by remotevar.CBOR.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, shortest integers, no indefinite lengths. The same logical
// value always serializes to the same bytes, which keeps variable
// fingerprints stable and lets the dirty check in remotevar skip
// writes whose content did not change.
//
// Struct tags: `json` tags are honored as a fallback, so one payload
// struct can be carried as either remotevar.JSON or remotevar.CBOR
// without a second set of tags.
package codec
