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

package gittimestamp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by an AnnotationStore when no blob is stored
	// for a revision.
	ErrNotFound = errors.New("no timestamp stored")

	// ErrAlreadyExists is returned by an AnnotationStore when a blob is
	// already stored for a revision.
	ErrAlreadyExists = errors.New("timestamp already exists")

	// ErrUnknownRevision is returned by a RevisionResolver when a spec names
	// no commit.
	ErrUnknownRevision = errors.New("unknown revision")
)

// ResolutionError is used when a revision spec cannot be resolved to a
// commit.
type ResolutionError struct {
	Spec string
	Err  error
}

func (e ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve revision %q: %v", e.Spec, e.Err)
	}
	return fmt.Sprintf("cannot resolve revision %q", e.Spec)
}

func (e ResolutionError) Unwrap() error {
	return e.Err
}

// ProofInvalidError is used when a timestamp fails verification against the
// revision digest or the trust anchor.
type ProofInvalidError struct {
	Revision string
	Err      error
}

func (e ProofInvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("timestamp of %s is invalid: %v", e.Revision, e.Err)
	}
	return fmt.Sprintf("timestamp of %s is invalid", e.Revision)
}

func (e ProofInvalidError) Unwrap() error {
	return e.Err
}

// StoreCorruptionError is used when a timestamp verified before it was
// written but the copy read back from the store does not. It points at the
// storage layer rather than the authority.
type StoreCorruptionError struct {
	Revision string
	Err      error
}

func (e StoreCorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stored timestamp of %s does not match the verified reply: %v", e.Revision, e.Err)
	}
	return fmt.Sprintf("stored timestamp of %s does not match the verified reply", e.Revision)
}

func (e StoreCorruptionError) Unwrap() error {
	return e.Err
}

// SubmissionError is used when requesting a timestamp from the authority
// fails, e.g. on a network error or a rejected request. Re-running create is
// safe.
type SubmissionError struct {
	Revision string
	Err      error
}

func (e SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("timestamp request for %s failed: %v", e.Revision, e.Err)
	}
	return fmt.Sprintf("timestamp request for %s failed", e.Revision)
}

func (e SubmissionError) Unwrap() error {
	return e.Err
}

// InvalidActionError is used when the requested action is not recognized.
type InvalidActionError struct {
	Action string
}

func (e InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %q, must be one of: %s", e.Action, strings.Join(actionNames(), ", "))
}
