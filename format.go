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
	"fmt"
	"strings"
	"time"
)

// Tone classifies a status phrase so that a Styler can colour it.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneGood
	ToneBad
)

// Styler decorates a status phrase, e.g. with terminal colours.
type Styler func(phrase string, tone Tone) string

// FormatOptions controls how results are rendered.
type FormatOptions struct {
	// Verbose prints the full commit id instead of the abbreviated one.
	Verbose bool

	// LocalTime also prints the commit time recorded in the revision.
	LocalTime bool

	// Style decorates status phrases. nil leaves them plain.
	Style Styler
}

func (o FormatOptions) style(phrase string, tone Tone) string {
	if o.Style == nil {
		return phrase
	}
	return o.Style(phrase, tone)
}

// FormatTime renders a signed time and its accuracy.
func FormatTime(t time.Time, accuracy time.Duration) string {
	s := t.UTC().Format(time.RFC3339)
	if accuracy > 0 {
		s += " ±" + accuracy.String()
	}
	return s
}

// FormatItem renders one batch item: the result line, followed by the
// indented reply text for examine.
func FormatItem(item Item, opts FormatOptions) string {
	if item.Failed() {
		return formatFailure(item, opts)
	}
	return FormatResult(item.Result, opts)
}

// FormatResult renders a successful result.
func FormatResult(r *Result, opts FormatOptions) string {
	var status string
	switch r.Outcome {
	case OutcomeNoTimestamp:
		status = opts.style("no trusted timestamp", ToneNeutral)
	case OutcomeVerified:
		phrase := "trusted timestamp"
		if r.Existing {
			phrase = "already has trusted timestamp"
		}
		status = opts.style(phrase, ToneGood) + " " + FormatTime(r.Reply.SignedTime, r.Reply.Accuracy)
	case OutcomeCreated:
		status = opts.style("created trusted timestamp", ToneGood) + " " + FormatTime(r.Reply.SignedTime, r.Reply.Accuracy)
	case OutcomeRemoved:
		status = opts.style("removed trusted timestamp", ToneGood)
	case OutcomeSkipped:
		status = opts.style("skipped, nothing to remove", ToneNeutral)
	}

	var b strings.Builder
	b.WriteString(revisionLabel(r.Revision, opts))
	b.WriteString(": ")
	b.WriteString(status)
	if opts.LocalTime && !r.Revision.CommitTime.IsZero() {
		fmt.Fprintf(&b, " (committed %s)", r.Revision.CommitTime.Format(time.RFC3339))
	}
	b.WriteByte('\n')
	if r.Action == ActionExamine && r.Reply != nil {
		for _, line := range strings.Split(strings.TrimRight(r.Reply.Text, "\n"), "\n") {
			if line == "" {
				b.WriteByte('\n')
				continue
			}
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatFailure(item Item, opts FormatOptions) string {
	label := item.Spec
	if item.Resolved {
		label = revisionLabel(item.Revision, opts)
	}
	return fmt.Sprintf("%s: %s %v\n", label, opts.style("FAILED:", ToneBad), item.Err)
}

func revisionLabel(r Revision, opts FormatOptions) string {
	id := r.ShortID
	if opts.Verbose || id == "" {
		id = r.ID
	}
	if r.Subject == "" {
		return id
	}
	return id + " " + r.Subject
}
