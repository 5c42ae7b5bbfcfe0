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

package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	gittimestamp "github.com/notaryproject/git-timestamp"
	"github.com/notaryproject/git-timestamp/log"
)

const (
	addMessage    = "Notes added by 'git timestamp'\n"
	removeMessage = "Notes removed by 'git timestamp'\n"
)

// nativeRepository implements Repository with go-git.
type nativeRepository struct {
	path     string
	notesRef plumbing.ReferenceName
	remote   string

	// mu guards repo, which is not safe for concurrent use.
	mu   sync.Mutex
	repo *gogit.Repository

	now func() time.Time
}

func openNative(path string, opts Options) (*nativeRepository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &nativeRepository{
		path:     path,
		notesRef: plumbing.ReferenceName(opts.NotesRef),
		remote:   opts.Remote,
		repo:     repo,
		now:      time.Now,
	}, nil
}

func (r *nativeRepository) Path() string {
	return r.path
}

func (r *nativeRepository) Resolve(ctx context.Context, spec string) (gittimestamp.Revision, error) {
	if spec == "" || strings.HasPrefix(spec, "-") {
		return gittimestamp.Revision{}, fmt.Errorf("%q: %w", spec, gittimestamp.ErrUnknownRevision)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.repo.ResolveRevision(plumbing.Revision(spec))
	if err != nil {
		log.GetLogger(ctx).Debugf("resolve %q: %v", spec, err)
		return gittimestamp.Revision{}, fmt.Errorf("%q: %w", spec, gittimestamp.ErrUnknownRevision)
	}
	commit, err := r.repo.CommitObject(*h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return gittimestamp.Revision{}, fmt.Errorf("%q is not a commit: %w", spec, gittimestamp.ErrUnknownRevision)
		}
		return gittimestamp.Revision{}, err
	}
	id := commit.Hash.String()
	return gittimestamp.Revision{
		ID:         id,
		ShortID:    id[:7],
		Subject:    subjectOf(commit.Message),
		CommitTime: commit.Committer.When,
	}, nil
}

// head returns the current notes commit, or nil if the notes ref does not
// exist yet.
func (r *nativeRepository) head() (*plumbing.Reference, *object.Commit, error) {
	ref, err := r.repo.Storer.Reference(r.notesRef)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", r.notesRef, err)
	}
	return ref, commit, nil
}

func (r *nativeRepository) load() (*plumbing.Reference, notesTree, error) {
	ref, commit, err := r.head()
	if err != nil || commit == nil {
		return ref, notesTree{}, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", r.notesRef, err)
	}
	notes, err := readNotesTree(r.repo.Storer, tree)
	if err != nil {
		return nil, nil, err
	}
	return ref, notes, nil
}

func (r *nativeRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, notes, err := r.load()
	if err != nil {
		return nil, err
	}
	e, ok := notes[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, gittimestamp.ErrNotFound)
	}
	return readBlob(r.repo.Storer, e.hash)
}

func (r *nativeRepository) Put(ctx context.Context, id string, blob []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old, notes, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := notes[id]; ok {
		return fmt.Errorf("%s: %w", id, gittimestamp.ErrAlreadyExists)
	}
	h, err := writeBlob(r.repo.Storer, blob)
	if err != nil {
		return err
	}
	notes[id] = notesEntry{mode: blobMode, hash: h}
	if err := r.commit(old, notes, addMessage); err != nil {
		return err
	}
	log.GetLogger(ctx).Debugf("added note %s for %s to %s", h, id, r.notesRef)
	return nil
}

func (r *nativeRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old, notes, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := notes[id]; !ok {
		return fmt.Errorf("%s: %w", id, gittimestamp.ErrNotFound)
	}
	delete(notes, id)
	if err := r.commit(old, notes, removeMessage); err != nil {
		return err
	}
	log.GetLogger(ctx).Debugf("removed note for %s from %s", id, r.notesRef)
	return nil
}

// commit records notes as a new notes commit on top of old and moves the
// notes ref, failing if the ref moved in the meantime.
func (r *nativeRepository) commit(old *plumbing.Reference, notes notesTree, message string) error {
	treeHash, err := notes.write(r.repo.Storer)
	if err != nil {
		return fmt.Errorf("write notes tree: %w", err)
	}
	sig := r.signature()
	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  treeHash,
	}
	if old != nil {
		c.ParentHashes = []plumbing.Hash{old.Hash()}
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return err
	}
	commitHash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("write notes commit: %w", err)
	}
	ref := plumbing.NewHashReference(r.notesRef, commitHash)
	if err := r.repo.Storer.CheckAndSetReference(ref, old); err != nil {
		return fmt.Errorf("update %s: %w", r.notesRef, err)
	}
	return nil
}

func (r *nativeRepository) signature() object.Signature {
	sig := object.Signature{
		Name:  "git-timestamp",
		Email: "git-timestamp@localhost",
		When:  r.now(),
	}
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}

// remoteFor returns the configured remote named r.remote, or an anonymous
// remote if r.remote is a URL or path.
func (r *nativeRepository) remoteFor() (*gogit.Remote, error) {
	remote, err := r.repo.Remote(r.remote)
	if err == nil {
		return remote, nil
	}
	if !errors.Is(err, gogit.ErrRemoteNotFound) {
		return nil, err
	}
	cfg := &config.RemoteConfig{Name: "anonymous", URLs: []string{r.remote}}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote %q: %w", r.remote, err)
	}
	return gogit.NewRemote(r.repo.Storer, cfg), nil
}

func (r *nativeRepository) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	remote, err := r.remoteFor()
	if err != nil {
		return err
	}
	err = remote.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remote.Config().Name,
		RefSpecs:   []config.RefSpec{config.RefSpec(refspec(string(r.notesRef)))},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s to %s: %w", r.notesRef, r.remote, err)
	}
	return nil
}

func (r *nativeRepository) Fetch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	remote, err := r.remoteFor()
	if err != nil {
		return err
	}
	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remote.Config().Name,
		RefSpecs:   []config.RefSpec{config.RefSpec(refspec(string(r.notesRef)))},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s from %s: %w", r.notesRef, r.remote, err)
	}
	return nil
}
