// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gittimestamp attaches RFC 3161 trusted timestamps to git commits.
//
// Proofs are the raw replies of a timestamp authority (TSA). They are stored
// base64 encoded in a notes ref keyed by commit id, so timestamping never
// rewrites history. The Manager decides per revision whether a valid proof
// exists and runs the matching transition; the BatchRunner applies one
// action over a stream of revision specs without letting one failure abort
// the rest.
package gittimestamp

import (
	"context"
	"time"
)

// Revision is a resolved commit.
type Revision struct {
	// ID is the full hexadecimal commit id.
	ID string

	// ShortID is the abbreviated commit id.
	ShortID string

	// Subject is the first line of the commit message.
	Subject string

	// CommitTime is the committer time recorded in the commit.
	CommitTime time.Time
}

// RevisionResolver resolves revision specs such as "HEAD~2" or "v1.0" to
// commits.
type RevisionResolver interface {
	// Resolve returns the commit named by spec. It returns an error
	// wrapping ErrUnknownRevision when spec names no commit.
	Resolve(ctx context.Context, spec string) (Revision, error)
}

// AnnotationStore is a blob store keyed by commit id within one notes ref.
type AnnotationStore interface {
	// Get returns the blob stored for id, or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put stores blob for id. It fails with an error wrapping
	// ErrAlreadyExists when a blob is already stored for id.
	Put(ctx context.Context, id string, blob []byte) error

	// Delete removes the blob stored for id, or returns an error wrapping
	// ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Push publishes the notes ref to the configured remote.
	Push(ctx context.Context) error

	// Fetch updates the notes ref from the configured remote.
	Fetch(ctx context.Context) error
}

// Authority is a client of an RFC 3161 timestamp authority. The trust
// anchor used by Verify is part of the Authority's configuration.
type Authority interface {
	// BuildQuery encodes a time-stamp request whose message imprint covers
	// digest.
	BuildQuery(digest []byte) ([]byte, error)

	// Submit sends the encoded request to the authority and returns the
	// encoded reply.
	Submit(ctx context.Context, query []byte) ([]byte, error)

	// ParseReply decodes a reply without verifying it.
	ParseReply(reply []byte) (*Reply, error)

	// Verify checks that reply is a granted, trusted timestamp of digest.
	Verify(ctx context.Context, reply []byte, digest []byte) error
}

// Reply is the decoded content of a timestamp authority reply.
type Reply struct {
	// Status is the PKI status of the reply, e.g. "granted".
	Status string

	// SignedTime is the genTime asserted by the authority.
	SignedTime time.Time

	// Accuracy is the accuracy of SignedTime.
	Accuracy time.Duration

	// SerialNumber is the token serial number in hexadecimal.
	SerialNumber string

	// Policy is the TSA policy OID.
	Policy string

	// MessageImprint is the digest covered by the token, e.g.
	// "sha256:9f86d0...".
	MessageImprint string

	// Authority names the TSA, when present in the token.
	Authority string

	// Text is the full human readable rendering of the reply.
	Text string
}

// Gate throttles submissions to the timestamp authority.
type Gate interface {
	// Admit blocks until the next submission may proceed. The caller calls
	// release once the submission is over, reporting whether it succeeded.
	Admit(ctx context.Context) (release func(submitted bool), err error)
}
