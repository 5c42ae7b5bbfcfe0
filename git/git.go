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

// Package git resolves revisions and stores timestamps as notes in a git
// repository. Two backends are available: one runs the git executable, the
// other is a pure Go implementation on top of go-git.
package git

import (
	"context"
	"fmt"
	"strings"

	gittimestamp "github.com/notaryproject/git-timestamp"
)

// Backend names accepted by Open.
const (
	BackendCLI    = "git"
	BackendNative = "native"
)

// MaxNoteSize bounds the size of a stored note. Timestamp replies are a few
// kilobytes.
const MaxNoteSize = 1 << 20

// Options configures Open.
type Options struct {
	// Backend selects the implementation. BackendCLI is used if empty.
	Backend string

	// NotesRef is the full name of the notes ref, e.g.
	// "refs/notes/timestamp".
	NotesRef string

	// Remote is the remote used by Push and Fetch.
	Remote string
}

// Repository is a git repository holding timestamp notes.
type Repository interface {
	gittimestamp.RevisionResolver
	gittimestamp.AnnotationStore

	// Path returns the path the repository was opened at.
	Path() string
}

// Open opens the repository containing path.
func Open(ctx context.Context, path string, opts Options) (Repository, error) {
	if !strings.HasPrefix(opts.NotesRef, "refs/notes/") || strings.ContainsAny(opts.NotesRef, " ~^:?*[\\") {
		return nil, fmt.Errorf("invalid notes ref %q", opts.NotesRef)
	}
	if opts.Remote == "" || strings.HasPrefix(opts.Remote, "-") {
		return nil, fmt.Errorf("invalid remote %q", opts.Remote)
	}
	switch opts.Backend {
	case "", BackendCLI:
		repo, err := openCLI(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case BackendNative:
		repo, err := openNative(path, opts)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown git backend %q, must be %q or %q", opts.Backend, BackendCLI, BackendNative)
}

// validateID rejects anything but a full SHA-1 or SHA-256 object id.
func validateID(id string) error {
	if len(id) != 40 && len(id) != 64 {
		return fmt.Errorf("invalid object id %q", id)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid object id %q", id)
		}
	}
	return nil
}

// refspec maps the notes ref onto itself on the other side.
func refspec(ref string) string {
	return ref + ":" + ref
}

func subjectOf(message string) string {
	subject, _, _ := strings.Cut(strings.TrimLeft(message, "\n"), "\n")
	return strings.TrimSpace(subject)
}
