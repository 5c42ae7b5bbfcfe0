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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notaryproject/git-timestamp/log"
)

// SpecStream is a lazy sequence of revision specs. Next returns io.EOF once
// the sequence is exhausted.
type SpecStream interface {
	Next() (string, error)
}

type sliceStream struct {
	specs []string
}

// Specs returns a SpecStream over the given specs.
func Specs(specs ...string) SpecStream {
	return &sliceStream{specs: specs}
}

func (s *sliceStream) Next() (string, error) {
	if len(s.specs) == 0 {
		return "", io.EOF
	}
	spec := s.specs[0]
	s.specs = s.specs[1:]
	return spec, nil
}

type scanStream struct {
	scanner *bufio.Scanner
}

// ScanSpecs returns a SpecStream reading one spec per line from r as the
// lines arrive. Surrounding whitespace is trimmed and blank lines are
// skipped.
func ScanSpecs(r io.Reader) SpecStream {
	return &scanStream{scanner: bufio.NewScanner(r)}
}

func (s *scanStream) Next() (string, error) {
	for s.scanner.Scan() {
		if spec := strings.TrimSpace(s.scanner.Text()); spec != "" {
			return spec, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Item is the outcome of one spec in a batch.
type Item struct {
	// Index is the position of the spec in the stream.
	Index int

	// Spec is the revision spec as read.
	Spec string

	// Resolved is set once the spec resolved to a commit.
	Resolved bool

	// Revision is the resolved commit, valid when Resolved is set.
	Revision Revision

	// Result is set when the action succeeded.
	Result *Result

	// Err is set when resolving or the action failed.
	Err error
}

// Failed reports whether the item failed.
func (i Item) Failed() bool {
	return i.Err != nil
}

// Reporter receives every item of a batch as it completes. Calls are
// serialized.
type Reporter interface {
	Report(Item)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Item)

// Report calls f(item).
func (f ReporterFunc) Report(item Item) {
	f(item)
}

// Summary aggregates a batch run.
type Summary struct {
	Processed int
	Failed    int
}

// OK reports whether every processed item succeeded.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// BatchOptions configures a BatchRunner.
type BatchOptions struct {
	// Concurrency is the number of items processed at once. Values below 2
	// process items sequentially in stream order.
	Concurrency int

	// ItemTimeout bounds the whole operation on one item. Zero means no
	// timeout.
	ItemTimeout time.Duration
}

// BatchRunner applies one action over a stream of revision specs. A failing
// item never prevents the following items from being processed.
type BatchRunner struct {
	manager  *Manager
	reporter Reporter
	opts     BatchOptions

	mu sync.Mutex
}

// NewBatchRunner creates a BatchRunner. reporter may be nil.
func NewBatchRunner(manager *Manager, reporter Reporter, opts BatchOptions) *BatchRunner {
	if reporter == nil {
		reporter = ReporterFunc(func(Item) {})
	}
	return &BatchRunner{
		manager:  manager,
		reporter: reporter,
		opts:     opts,
	}
}

// Run applies action to every spec of specs and returns the aggregate.
// Per-item failures are reported and counted, not returned; the error is
// only set for an invalid action or when reading the stream fails.
func (b *BatchRunner) Run(ctx context.Context, action Action, specs SpecStream) (Summary, error) {
	if !action.PerRevision() {
		return Summary{}, InvalidActionError{Action: action.String()}
	}
	summary := Summary{Processed: 0, Failed: 0}
	if b.opts.Concurrency > 1 {
		return b.runConcurrent(ctx, action, specs, &summary)
	}
	for index := 0; ; index++ {
		spec, err := specs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("read revisions: %w", err)
		}
		b.record(&summary, b.process(ctx, action, index, spec))
	}
	return summary, nil
}

func (b *BatchRunner) runConcurrent(ctx context.Context, action Action, specs SpecStream, summary *Summary) (Summary, error) {
	var group errgroup.Group
	group.SetLimit(b.opts.Concurrency)
	var readErr error
	for index := 0; ; index++ {
		spec, err := specs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("read revisions: %w", err)
			break
		}
		group.Go(func() error {
			b.record(summary, b.process(ctx, action, index, spec))
			return nil
		})
	}
	group.Wait()
	return *summary, readErr
}

func (b *BatchRunner) record(summary *Summary, item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	summary.Processed++
	if item.Failed() {
		summary.Failed++
	}
	b.reporter.Report(item)
}

func (b *BatchRunner) process(ctx context.Context, action Action, index int, spec string) Item {
	item := Item{Index: index, Spec: spec, Resolved: false}
	if b.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ItemTimeout)
		defer cancel()
	}

	target, err := b.manager.Prepare(ctx, spec)
	if err != nil {
		log.GetLogger(ctx).Debugf("skipping %q: %v", spec, err)
		item.Err = err
		return item
	}
	defer target.Release()
	item.Resolved = true
	item.Revision = target.Revision

	item.Result, item.Err = b.manager.Do(ctx, action, target)
	return item
}
