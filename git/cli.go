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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gittimestamp "github.com/notaryproject/git-timestamp"
	iox "github.com/notaryproject/git-timestamp/internal/io"
	"github.com/notaryproject/git-timestamp/log"
)

// cliRepository runs the git executable.
type cliRepository struct {
	path     string
	notesRef string
	remote   string

	// writeMu serializes notes updates, which all race for the notes ref
	// lock file.
	writeMu sync.Mutex
}

// commandError is returned when git exits with a non-zero status.
type commandError struct {
	args     []string
	exitCode int
	stderr   string
	err      error
}

func (e *commandError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("git %s: %v: %s", strings.Join(e.args, " "), e.err, e.stderr)
	}
	return fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
}

func (e *commandError) Unwrap() error {
	return e.err
}

func openCLI(ctx context.Context, path string, opts Options) (*cliRepository, error) {
	if err := ensureMinGitVersion(ctx); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &cliRepository{
		path:     abs,
		notesRef: opts.NotesRef,
		remote:   opts.Remote,
	}
	if _, err := r.run(ctx, nil, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return r, nil
}

func (r *cliRepository) Path() string {
	return r.path
}

// run runs git in the repository and returns its standard output.
func (r *cliRepository) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.path}, args...)...)
	// Error messages are matched below.
	cmd.Env = append(os.Environ(), "LC_ALL=C", "LANGUAGE=C")
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.GetLogger(ctx).Debugf("running git %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		cmdErr := &commandError{
			args:     args,
			exitCode: -1,
			stderr:   strings.TrimSpace(stderr.String()),
			err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.exitCode = exitErr.ExitCode()
		}
		return nil, cmdErr
	}
	return stdout.Bytes(), nil
}

func (r *cliRepository) Resolve(ctx context.Context, spec string) (gittimestamp.Revision, error) {
	if spec == "" || strings.HasPrefix(spec, "-") {
		return gittimestamp.Revision{}, fmt.Errorf("%q: %w", spec, gittimestamp.ErrUnknownRevision)
	}
	out, err := r.run(ctx, nil, "rev-parse", "--verify", "--quiet", spec+"^{commit}")
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && cmdErr.exitCode == 1 {
			return gittimestamp.Revision{}, fmt.Errorf("%q: %w", spec, gittimestamp.ErrUnknownRevision)
		}
		return gittimestamp.Revision{}, err
	}
	id := strings.TrimSpace(string(out))
	if err := validateID(id); err != nil {
		return gittimestamp.Revision{}, err
	}

	out, err = r.run(ctx, nil, "log", "-1", "--no-show-signature", "--format=%h%x00%cI%x00%s", id)
	if err != nil {
		return gittimestamp.Revision{}, err
	}
	fields := strings.SplitN(strings.TrimRight(string(out), "\n"), "\x00", 3)
	if len(fields) != 3 {
		return gittimestamp.Revision{}, fmt.Errorf("unexpected git log output %q", out)
	}
	committed, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return gittimestamp.Revision{}, fmt.Errorf("unexpected commit time %q: %w", fields[1], err)
	}
	return gittimestamp.Revision{
		ID:         id,
		ShortID:    fields[0],
		Subject:    fields[2],
		CommitTime: committed,
	}, nil
}

func (r *cliRepository) notes(args ...string) []string {
	return append([]string{"notes", "--ref=" + r.notesRef}, args...)
}

func (r *cliRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	out, err := r.run(ctx, nil, r.notes("show", id)...)
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.stderr, "no note found") {
			return nil, fmt.Errorf("%s: %w", id, gittimestamp.ErrNotFound)
		}
		return nil, err
	}
	if len(out) > MaxNoteSize {
		return nil, fmt.Errorf("note of %s: %w", id, iox.ErrLimitExceeded)
	}
	return out, nil
}

// Put stores blob byte for byte. `git notes add -C` takes an existing blob
// and skips the message cleanup that -m and -F apply.
func (r *cliRepository) Put(ctx context.Context, id string, blob []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	out, err := r.run(ctx, blob, "hash-object", "-w", "--stdin")
	if err != nil {
		return err
	}
	blobID := strings.TrimSpace(string(out))
	if _, err := r.run(ctx, nil, r.notes("add", "-C", blobID, id)...); err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.stderr, "existing notes") {
			return fmt.Errorf("%s: %w", id, gittimestamp.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (r *cliRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := r.run(ctx, nil, r.notes("remove", id)...); err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.stderr, "has no note") {
			return fmt.Errorf("%s: %w", id, gittimestamp.ErrNotFound)
		}
		return err
	}
	return nil
}

func (r *cliRepository) Push(ctx context.Context) error {
	_, err := r.run(ctx, nil, "push", r.remote, refspec(r.notesRef))
	return err
}

func (r *cliRepository) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, nil, "fetch", r.remote, refspec(r.notesRef))
	return err
}
