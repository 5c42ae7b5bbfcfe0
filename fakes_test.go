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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeResolver resolves specs from a fixed table.
type fakeResolver struct {
	revisions map[string]Revision
}

func newFakeResolver(revisions ...Revision) *fakeResolver {
	r := &fakeResolver{revisions: map[string]Revision{}}
	for _, rev := range revisions {
		r.revisions[rev.ID] = rev
		r.revisions[rev.ShortID] = rev
	}
	return r
}

func (r *fakeResolver) alias(spec string, rev Revision) {
	r.revisions[spec] = rev
}

func (r *fakeResolver) Resolve(_ context.Context, spec string) (Revision, error) {
	rev, ok := r.revisions[spec]
	if !ok {
		return Revision{}, fmt.Errorf("%q: %w", spec, ErrUnknownRevision)
	}
	return rev, nil
}

// memStore is an in-memory AnnotationStore.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// mangle rewrites blobs on Put, simulating a defective store.
	mangle func([]byte) []byte
	// racer, when set, stores its blob first and makes Put fail, simulating
	// a concurrent writer.
	racer func(id string) []byte
	getErr error

	puts    int
	deletes int
	pushes  int
	fetches int
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	blob, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return bytes.Clone(blob), nil
}

func (s *memStore) Put(_ context.Context, id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.racer != nil {
		s.blobs[id] = s.racer(id)
		s.racer = nil
	}
	if _, ok := s.blobs[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrAlreadyExists)
	}
	s.puts++
	if s.mangle != nil {
		blob = s.mangle(bytes.Clone(blob))
	}
	s.blobs[id] = bytes.Clone(blob)
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	s.deletes++
	delete(s.blobs, id)
	return nil
}

func (s *memStore) Push(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	return nil
}

func (s *memStore) Fetch(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return nil
}

func (s *memStore) blob(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.blobs[id])
}

func (s *memStore) set(id string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = bytes.Clone(blob)
}

// fakeAuthority issues replies of the form
// "granted|<digest>|<unix seconds>|<mac>" where mac binds the other fields
// to a secret, so tampering is detected by Verify.
type fakeAuthority struct {
	mu          sync.Mutex
	secret      string
	base        time.Time
	submissions int

	submitErr    error
	rejectVerify bool
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		secret: "tsa-secret",
		base:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (a *fakeAuthority) mac(digest string, unix int64) string {
	sum := sha256.Sum256([]byte(a.secret + "|" + digest + "|" + strconv.FormatInt(unix, 10)))
	return hex.EncodeToString(sum[:])
}

// issue returns a valid reply for digest signed at t.
func (a *fakeAuthority) issue(digest string, t time.Time) []byte {
	return []byte(fmt.Sprintf("granted|%s|%d|%s", digest, t.Unix(), a.mac(digest, t.Unix())))
}

func (a *fakeAuthority) BuildQuery(digest []byte) ([]byte, error) {
	if len(digest) == 0 {
		return nil, errors.New("empty digest")
	}
	return append([]byte("query:"), digest...), nil
}

func (a *fakeAuthority) Submit(_ context.Context, query []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.submitErr != nil {
		return nil, a.submitErr
	}
	digest, ok := strings.CutPrefix(string(query), "query:")
	if !ok {
		return nil, errors.New("malformed query")
	}
	a.submissions++
	return a.issue(digest, a.base.Add(time.Duration(a.submissions)*time.Minute)), nil
}

func (a *fakeAuthority) parse(reply []byte) (digest string, unix int64, mac string, err error) {
	fields := strings.Split(string(reply), "|")
	if len(fields) != 4 || fields[0] != "granted" {
		return "", 0, "", errors.New("malformed reply")
	}
	unix, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed time: %w", err)
	}
	return fields[1], unix, fields[3], nil
}

func (a *fakeAuthority) ParseReply(reply []byte) (*Reply, error) {
	digest, unix, _, err := a.parse(reply)
	if err != nil {
		return nil, err
	}
	signed := time.Unix(unix, 0).UTC()
	return &Reply{
		Status:         "granted",
		SignedTime:     signed,
		Accuracy:       time.Second,
		MessageImprint: digest,
		Text:           fmt.Sprintf("Status: granted\n\nTime stamp: %s\nMessage data: %s\n", signed.Format(time.RFC3339), digest),
	}, nil
}

func (a *fakeAuthority) Verify(_ context.Context, reply []byte, digest []byte) error {
	if a.rejectVerify {
		return errors.New("certificate signed by unknown authority")
	}
	got, unix, mac, err := a.parse(reply)
	if err != nil {
		return err
	}
	if got != string(digest) {
		return errors.New("mismatch message digest")
	}
	if mac != a.mac(got, unix) {
		return errors.New("signature verification failed")
	}
	return nil
}

func (a *fakeAuthority) submitted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submissions
}

// countingGate records how often submissions were admitted and how many
// of them succeeded.
type countingGate struct {
	mu        sync.Mutex
	admits    int
	succeeded int
}

func (g *countingGate) Admit(ctx context.Context) (func(bool), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admits++
	return func(submitted bool) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if submitted {
			g.succeeded++
		}
	}, ctx.Err()
}

var (
	revABC = Revision{
		ID:         "abc1230000000000000000000000000000000000",
		ShortID:    "abc123",
		Subject:    "Initial import",
		CommitTime: time.Date(2024, 4, 30, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
	}
	revDEF = Revision{
		ID:      "def4560000000000000000000000000000000000",
		ShortID: "def456",
		Subject: "Add parser",
	}
	revFED = Revision{
		ID:      "fed9870000000000000000000000000000000000",
		ShortID: "fed987",
		Subject: "Fix parser",
	}
)

type fixture struct {
	resolver  *fakeResolver
	store     *memStore
	authority *fakeAuthority
	manager   *Manager
}

func newFixture(opts ManagerOptions) (*fixture, error) {
	f := &fixture{
		resolver:  newFakeResolver(revABC, revDEF, revFED),
		store:     newMemStore(),
		authority: newFakeAuthority(),
	}
	m, err := NewManager(f.resolver, f.store, f.authority, opts)
	if err != nil {
		return nil, err
	}
	f.manager = m
	return f, nil
}
