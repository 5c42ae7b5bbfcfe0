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

// git-timestamp attaches RFC 3161 trusted timestamps to git commits and
// verifies them. Proofs are kept in a notes ref, so they can be shared with
// push and fetch without rewriting history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	gittimestamp "github.com/notaryproject/git-timestamp"
	"github.com/notaryproject/git-timestamp/config"
	"github.com/notaryproject/git-timestamp/git"
	"github.com/notaryproject/git-timestamp/internal/gate"
	"github.com/notaryproject/git-timestamp/log"
	"github.com/notaryproject/git-timestamp/tsa"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
)

// ocspTimeout bounds each OCSP request of the revocation check.
const ocspTimeout = 5 * time.Second

type options struct {
	verbose     bool
	localTime   bool
	debug       bool
	repoPath    string
	configPath  string
	tsaURL      string
	trustAnchor string
	delay       string
	notesRef    string
	remote      string
	backend     string
	jobs        int
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flags := pflag.NewFlagSet("git-timestamp", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print full commit ids")
	flags.BoolVarP(&opts.localTime, "local-time", "l", false, "also print the commit time of each revision")
	flags.BoolP("help", "h", false, "show help")
	flags.StringVarP(&opts.repoPath, "repository", "C", ".", "path inside the git repository")
	flags.StringVar(&opts.configPath, "config", "", "config file (default: the user config directory)")
	flags.StringVar(&opts.tsaURL, "tsa-url", "", "timestamp authority URL")
	flags.StringVar(&opts.trustAnchor, "trust-anchor", "", "PEM or DER certificate file trusted to sign timestamps")
	flags.StringVar(&opts.delay, "delay", "", "minimum interval between two submissions, e.g. 5s")
	flags.StringVar(&opts.notesRef, "ref", "", "notes ref holding the timestamps")
	flags.StringVar(&opts.remote, "remote", "", "remote used by push and fetch")
	flags.StringVar(&opts.backend, "backend", "", "git implementation: git or native")
	flags.IntVarP(&opts.jobs, "jobs", "j", 1, "number of revisions processed at once")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	return flags
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprint(w, `Usage:
  git-timestamp [flags] <action> [revision|-]

Actions:
  create    timestamp the revision unless it already has a valid timestamp
  verify    verify the stored timestamp of the revision
  examine   verify and print the full timestamp reply
  remove    remove the stored timestamp of the revision
  push      push the timestamps to the remote
  fetch     fetch the timestamps from the remote

The revision defaults to HEAD. With "-", revisions are read from standard
input, one per line.

Flags:
`)
	fmt.Fprint(w, flags.FlagUsages())
}

// wantsHelp reports whether args ask for help anywhere before "--".
func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "--":
			return false
		case "-h", "--help":
			return true
		}
	}
	return false
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	flags := newFlagSet(&opts)
	flags.SetOutput(stderr)
	flags.Usage = func() {}
	if wantsHelp(args) {
		printUsage(stdout, flags)
		return exitOK
	}
	if err := flags.Parse(args); err != nil {
		fmt.Fprintf(stderr, "git-timestamp: %v\n", err)
		printUsage(stderr, flags)
		return exitFailure
	}
	positional := flags.Args()
	if len(positional) == 0 {
		fmt.Fprintln(stderr, "git-timestamp: missing action")
		printUsage(stderr, flags)
		return exitFailure
	}
	if len(positional) > 2 {
		fmt.Fprintf(stderr, "git-timestamp: unexpected argument %q\n", positional[2])
		return exitFailure
	}
	action, err := gittimestamp.ParseAction(positional[0])
	if err != nil {
		fmt.Fprintf(stderr, "git-timestamp: %v\n", err)
		return exitFailure
	}
	revision := "HEAD"
	if len(positional) == 2 {
		if !action.PerRevision() {
			fmt.Fprintf(stderr, "git-timestamp: %s takes no revision\n", action)
			return exitFailure
		}
		revision = positional[1]
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := log.NewSlogLogger(log.NewCommandLogger(stderr, level))
	ctx = log.WithLogger(ctx, logger)

	if err := execute(ctx, flags, &opts, action, revision, stdin, stdout); err != nil {
		var failed batchFailedError
		if !errors.As(err, &failed) {
			fmt.Fprintf(stderr, "git-timestamp: %v\n", err)
		}
		return exitFailure
	}
	return exitOK
}

// batchFailedError is returned when some items failed. The items were
// already reported.
type batchFailedError struct {
	summary gittimestamp.Summary
}

func (e batchFailedError) Error() string {
	return fmt.Sprintf("%d of %d revisions failed", e.summary.Failed, e.summary.Processed)
}

func execute(ctx context.Context, flags *pflag.FlagSet, opts *options, action gittimestamp.Action, revision string, stdin io.Reader, stdout io.Writer) error {
	logger := log.GetLogger(ctx)
	cfg, err := loadConfig(flags, opts)
	if err != nil {
		return err
	}
	repo, err := git.Open(ctx, opts.repoPath, git.Options{
		Backend:  cfg.Backend,
		NotesRef: cfg.NotesRefName(),
		Remote:   cfg.Remote,
	})
	if err != nil {
		return err
	}
	logger.Debugf("using %s backend on %s, notes ref %s", cfg.Backend, repo.Path(), cfg.NotesRefName())

	authority, err := newAuthority(ctx, cfg, action)
	if err != nil {
		return err
	}
	delay, err := cfg.DelayDuration()
	if err != nil {
		return err
	}
	manager, err := gittimestamp.NewManager(repo, repo, authority, gittimestamp.ManagerOptions{
		Gate: gate.New(delay),
	})
	if err != nil {
		return err
	}

	switch action {
	case gittimestamp.ActionPush:
		if err := manager.Push(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "pushed %s to %s\n", cfg.NotesRefName(), cfg.Remote)
		return nil
	case gittimestamp.ActionFetch:
		if err := manager.Fetch(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "fetched %s from %s\n", cfg.NotesRefName(), cfg.Remote)
		return nil
	}

	itemTimeout, err := cfg.ItemTimeoutDuration()
	if err != nil {
		return err
	}

	specs := gittimestamp.Specs(revision)
	if revision == "-" {
		if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			logger.Info("reading revisions from standard input, one per line, end with Ctrl-D")
		}
		specs = gittimestamp.ScanSpecs(stdin)
	}
	format := gittimestamp.FormatOptions{
		Verbose:   opts.verbose,
		LocalTime: opts.localTime,
		Style:     newStyler(stdout),
	}
	reporter := gittimestamp.ReporterFunc(func(item gittimestamp.Item) {
		fmt.Fprint(stdout, gittimestamp.FormatItem(item, format))
	})
	runner := gittimestamp.NewBatchRunner(manager, reporter, gittimestamp.BatchOptions{
		Concurrency: opts.jobs,
		ItemTimeout: itemTimeout,
	})
	summary, err := runner.Run(ctx, action, specs)
	if err != nil {
		return err
	}
	logger.Debugf("processed %d revisions, %d failed", summary.Processed, summary.Failed)
	if !summary.OK() {
		return batchFailedError{summary: summary}
	}
	return nil
}

// loadConfig loads the config file and applies the flags set on the
// command line.
func loadConfig(flags *pflag.FlagSet, opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadConfigFile(opts.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.Changed("trust-anchor") {
		// relative to the working directory, not the config directory
		if opts.trustAnchor, err = filepath.Abs(opts.trustAnchor); err != nil {
			return nil, err
		}
	}
	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"tsa-url", opts.tsaURL, &cfg.TSAURL},
		{"trust-anchor", opts.trustAnchor, &cfg.TrustAnchor},
		{"delay", opts.delay, &cfg.Delay},
		{"ref", opts.notesRef, &cfg.NotesRef},
		{"remote", opts.remote, &cfg.Remote},
		{"backend", opts.backend, &cfg.Backend},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.value
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newAuthority creates the TSA client. remove, push and fetch never
// verify, so they do not need the trust anchor.
func newAuthority(ctx context.Context, cfg *config.Config, action gittimestamp.Action) (*tsa.Client, error) {
	hash, err := tsa.ParseHash(cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	opts := tsa.Options{URL: cfg.TSAURL, Hash: hash}
	switch action {
	case gittimestamp.ActionRemove, gittimestamp.ActionPush, gittimestamp.ActionFetch:
	default:
		path, err := cfg.TrustAnchorPath()
		if err != nil {
			return nil, err
		}
		anchor, err := tsa.LoadTrustAnchor(path)
		if err != nil {
			return nil, fmt.Errorf("load trust anchor: %w", err)
		}
		logger := log.GetLogger(ctx)
		logger.Debugf("trust anchor %s: %v", path, anchor.Fingerprints())
		now := time.Now()
		for _, cert := range anchor.Certificates() {
			if now.After(cert.NotAfter) {
				logger.Warnf("trust anchor certificate %q expired at %s, its timestamps no longer verify", cert.Subject.String(), cert.NotAfter.UTC().Format(time.RFC3339))
			}
		}
		opts.TrustAnchor = anchor
	}
	if cfg.Revocation {
		validator, err := tsa.NewRevocationValidator(&http.Client{Timeout: ocspTimeout})
		if err != nil {
			return nil, err
		}
		opts.Revocation = validator
	}
	return tsa.New(opts)
}

// newStyler colours status phrases when w is a colour terminal.
func newStyler(w io.Writer) gittimestamp.Styler {
	output := termenv.NewOutput(w)
	if output.Profile == termenv.Ascii {
		return nil
	}
	return func(phrase string, tone gittimestamp.Tone) string {
		style := output.String(phrase)
		switch tone {
		case gittimestamp.ToneGood:
			style = style.Foreground(output.Color("2"))
		case gittimestamp.ToneBad:
			style = style.Foreground(output.Color("1")).Bold()
		default:
			return phrase
		}
		return style.String()
	}
}
