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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notaryproject/git-timestamp/internal/container"
	"github.com/notaryproject/git-timestamp/log"
)

// State is the timestamp state of one revision.
type State int

const (
	// NoProof means no timestamp is stored for the revision.
	NoProof State = iota

	// HasProof means a timestamp blob is stored for the revision.
	HasProof
)

func (s State) String() string {
	if s == HasProof {
		return "has-proof"
	}
	return "no-proof"
}

// Outcome describes what an action did to a revision.
type Outcome int

const (
	// OutcomeNoTimestamp means verify or examine found no timestamp.
	OutcomeNoTimestamp Outcome = iota

	// OutcomeVerified means a stored timestamp verified.
	OutcomeVerified

	// OutcomeCreated means a new timestamp was requested and stored.
	OutcomeCreated

	// OutcomeRemoved means the stored timestamp was deleted.
	OutcomeRemoved

	// OutcomeSkipped means remove found nothing to delete.
	OutcomeSkipped
)

// Result is the successful result of an action on one revision.
type Result struct {
	Action   Action
	Revision Revision
	Outcome  Outcome

	// Existing is set when create found a timestamp already stored and
	// verified it instead of requesting a new one.
	Existing bool

	// Reply is the decoded proof for OutcomeVerified and OutcomeCreated.
	Reply *Reply
}

// SignedTime returns the time asserted by the proof, if any.
func (r *Result) SignedTime() (time.Time, bool) {
	if r == nil || r.Reply == nil {
		return time.Time{}, false
	}
	return r.Reply.SignedTime, true
}

// Target is a prepared revision: resolved, locked and with its stored state
// loaded. Targets are created by Manager.Prepare and must be released.
type Target struct {
	Revision Revision

	state  State
	blob   []byte
	unlock func()
}

// State returns the timestamp state of the target.
func (t *Target) State() State {
	return t.state
}

// Release releases the per-revision lock taken by Prepare. It is safe to
// call more than once.
func (t *Target) Release() {
	if t.unlock != nil {
		t.unlock()
	}
}

// digest is the message covered by the timestamp: the commit id.
func (t *Target) digest() []byte {
	return []byte(t.Revision.ID)
}

// ManagerOptions configures a Manager for one run.
type ManagerOptions struct {
	// Gate throttles submissions to the authority. nil disables
	// throttling.
	Gate Gate
}

// Manager runs the timestamp lifecycle of revisions.
type Manager struct {
	resolver  RevisionResolver
	store     AnnotationStore
	authority Authority
	gate      Gate
	locks     *container.KeyedMutex[string]
}

// NewManager creates a Manager. Every collaborator is required.
func NewManager(resolver RevisionResolver, store AnnotationStore, authority Authority, opts ManagerOptions) (*Manager, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if authority == nil {
		return nil, errors.New("authority cannot be nil")
	}
	gate := opts.Gate
	if gate == nil {
		gate = openGate{}
	}
	return &Manager{
		resolver:  resolver,
		store:     store,
		authority: authority,
		gate:      gate,
		locks:     container.NewKeyedMutex[string](),
	}, nil
}

// Prepare resolves spec and loads the stored state of the commit. The
// returned Target holds the commit's lock until released, so no two
// operations on the same commit run concurrently.
func (m *Manager) Prepare(ctx context.Context, spec string) (*Target, error) {
	logger := log.GetLogger(ctx)
	revision, err := m.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, ResolutionError{Spec: spec, Err: err}
	}

	target := &Target{
		Revision: revision,
		unlock:   m.locks.Lock(revision.ID),
	}
	blob, err := m.store.Get(ctx, revision.ID)
	switch {
	case err == nil:
		target.state = HasProof
		target.blob = blob
	case errors.Is(err, ErrNotFound):
		target.state = NoProof
	default:
		target.Release()
		return nil, fmt.Errorf("read timestamp of %s: %w", revision.ShortID, err)
	}
	logger.Debugf("prepared %s (%s): %s", revision.ShortID, spec, target.state)
	return target, nil
}

// Do runs a per-revision action on t.
func (m *Manager) Do(ctx context.Context, action Action, t *Target) (*Result, error) {
	switch action {
	case ActionCreate:
		return m.Create(ctx, t)
	case ActionVerify:
		return m.Verify(ctx, t)
	case ActionExamine:
		return m.Examine(ctx, t)
	case ActionRemove:
		return m.Remove(ctx, t)
	}
	return nil, InvalidActionError{Action: action.String()}
}

// Create timestamps t. A revision that already has a timestamp is verified
// instead; create never overwrites. A new reply is verified before it is
// written and verified again after it is read back from the store.
func (m *Manager) Create(ctx context.Context, t *Target) (*Result, error) {
	logger := log.GetLogger(ctx)
	if t.state == HasProof {
		logger.Debugf("%s already has a timestamp, verifying it", t.Revision.ShortID)
		return m.verifyExisting(ctx, t)
	}

	release, err := m.gate.Admit(ctx)
	if err != nil {
		return nil, SubmissionError{Revision: t.Revision.ShortID, Err: err}
	}
	// The next create waits only after this one stored a timestamp.
	created := false
	defer func() {
		release(created)
	}()
	digest := t.digest()
	query, err := m.authority.BuildQuery(digest)
	if err != nil {
		return nil, SubmissionError{Revision: t.Revision.ShortID, Err: fmt.Errorf("build request: %w", err)}
	}
	logger.Debugf("requesting timestamp for %s", t.Revision.ID)
	reply, err := m.authority.Submit(ctx, query)
	if err != nil {
		return nil, SubmissionError{Revision: t.Revision.ShortID, Err: err}
	}
	if err := m.authority.Verify(ctx, reply, digest); err != nil {
		return nil, ProofInvalidError{Revision: t.Revision.ShortID, Err: err}
	}
	parsed, err := m.authority.ParseReply(reply)
	if err != nil {
		return nil, ProofInvalidError{Revision: t.Revision.ShortID, Err: err}
	}

	if err := m.store.Put(ctx, t.Revision.ID, EncodeProof(reply)); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("store timestamp of %s: %w", t.Revision.ShortID, err)
		}
		logger.Warnf("timestamp of %s was stored by another writer, verifying the stored one", t.Revision.ShortID)
		stored, err := m.store.Get(ctx, t.Revision.ID)
		if err != nil {
			return nil, fmt.Errorf("read timestamp of %s: %w", t.Revision.ShortID, err)
		}
		t.state = HasProof
		t.blob = stored
		return m.verifyExisting(ctx, t)
	}

	stored, err := m.store.Get(ctx, t.Revision.ID)
	if err != nil {
		return nil, StoreCorruptionError{Revision: t.Revision.ShortID, Err: err}
	}
	if err := m.checkStored(ctx, stored, reply, digest); err != nil {
		return nil, StoreCorruptionError{Revision: t.Revision.ShortID, Err: err}
	}
	t.state = HasProof
	t.blob = stored
	created = true
	logger.Infof("timestamped %s at %s", t.Revision.ShortID, parsed.SignedTime.UTC().Format(time.RFC3339))
	return &Result{
		Action:   ActionCreate,
		Revision: t.Revision,
		Outcome:  OutcomeCreated,
		Reply:    parsed,
	}, nil
}

// checkStored verifies the blob read back after a write.
func (m *Manager) checkStored(ctx context.Context, stored, reply, digest []byte) error {
	storedReply, err := DecodeProof(stored)
	if err != nil {
		return err
	}
	if !bytes.Equal(storedReply, reply) {
		return errors.New("stored reply differs from the submitted one")
	}
	return m.authority.Verify(ctx, storedReply, digest)
}

func (m *Manager) verifyExisting(ctx context.Context, t *Target) (*Result, error) {
	result, err := m.verify(ctx, t, ActionCreate)
	if err != nil {
		return nil, err
	}
	result.Existing = true
	return result, nil
}

// Verify checks the stored timestamp of t. A revision without a timestamp
// is not an error.
func (m *Manager) Verify(ctx context.Context, t *Target) (*Result, error) {
	return m.verify(ctx, t, ActionVerify)
}

// Examine is Verify but the result is meant to be rendered with the full
// reply text.
func (m *Manager) Examine(ctx context.Context, t *Target) (*Result, error) {
	return m.verify(ctx, t, ActionExamine)
}

func (m *Manager) verify(ctx context.Context, t *Target, action Action) (*Result, error) {
	result := &Result{Action: action, Revision: t.Revision}
	if t.state == NoProof {
		result.Outcome = OutcomeNoTimestamp
		return result, nil
	}
	reply, err := DecodeProof(t.blob)
	if err != nil {
		return nil, ProofInvalidError{Revision: t.Revision.ShortID, Err: err}
	}
	if err := m.authority.Verify(ctx, reply, t.digest()); err != nil {
		return nil, ProofInvalidError{Revision: t.Revision.ShortID, Err: err}
	}
	parsed, err := m.authority.ParseReply(reply)
	if err != nil {
		return nil, ProofInvalidError{Revision: t.Revision.ShortID, Err: err}
	}
	result.Outcome = OutcomeVerified
	result.Reply = parsed
	return result, nil
}

// Remove deletes the stored timestamp of t. A revision without a timestamp
// is skipped.
func (m *Manager) Remove(ctx context.Context, t *Target) (*Result, error) {
	logger := log.GetLogger(ctx)
	result := &Result{Action: ActionRemove, Revision: t.Revision, Outcome: OutcomeSkipped}
	if t.state == NoProof {
		return result, nil
	}
	if err := m.store.Delete(ctx, t.Revision.ID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("remove timestamp of %s: %w", t.Revision.ShortID, err)
		}
		logger.Warnf("timestamp of %s was removed by another writer", t.Revision.ShortID)
	} else {
		result.Outcome = OutcomeRemoved
		logger.Infof("removed timestamp of %s", t.Revision.ShortID)
	}
	t.state = NoProof
	t.blob = nil
	return result, nil
}

// Push publishes the notes ref.
func (m *Manager) Push(ctx context.Context) error {
	return m.store.Push(ctx)
}

// Fetch updates the notes ref from the remote.
func (m *Manager) Fetch(ctx context.Context) error {
	return m.store.Fetch(ctx)
}

type openGate struct{}

func (openGate) Admit(ctx context.Context) (func(bool), error) {
	return func(bool) {}, ctx.Err()
}
