// Package query implements mpdq's "query" subcommand: evaluate an
// expression against the library and print matching file paths.
package query

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/client"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/query"
	"github.com/halfwit/mpdq/internal/similarity"
	"github.com/halfwit/mpdq/internal/store"
)

// Command is the "query" subcommand.
type Command struct {
	Cfg    *client.Config
	Daemon musicindex.MusicDaemon
	Run    func(shell string) ([]string, error)

	null bool // print NUL-separated paths instead of newline-separated
}

func (*Command) Name() string     { return "query" }
func (*Command) Synopsis() string { return "evaluate a query expression and print matching songs" }
func (*Command) Usage() string {
	return `query <expr>:
	Evaluate a query expression against the library and print the
	matching song paths, one per line.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.null, "0", false, "Separate printed paths with NUL instead of newline")
}

func (cmd *Command) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	expr := strings.Join(f.Args(), " ")
	if expr == "" {
		fmt.Fprintln(os.Stderr, "query: an expression is required")
		return subcommands.ExitUsageError
	}

	c := cache.New(cmd.Cfg.CacheDir, cmd.Cfg.Profile())
	idx := musicindex.New(cmd.Daemon, c)
	st := store.New(cmd.Cfg.CollectionsPath, c, idx)
	if err := st.Feed(ctx, false); err != nil {
		fmt.Fprintln(os.Stderr, "query: loading collections:", err)
		return subcommands.ExitFailure
	}

	backend := similarity.NewHTTPBackend(cmd.Cfg.SimilarityURL, cmd.Cfg.SimilarityAPIKey)
	sim := similarity.New(backend, c, cmd.Cfg.MinSimilarityPercent)

	run := cmd.Run
	if run == nil {
		run = runShell
	}
	ev := query.New(st, idx, sim, cmd.Cfg.EnableCommand, rand.New(rand.NewSource(time.Now().UnixNano())))
	ev.RunCommand = run

	result, err := ev.Evaluate(ctx, expr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		return subcommands.ExitFailure
	}

	sep := "\n"
	if cmd.null {
		sep = "\x00"
	}
	for _, song := range result.Slice() {
		fmt.Print(song, sep)
	}

	if st.NeedsWrite() {
		if err := st.WriteFile(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "query: writing collections file:", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// runShell runs shell via the system shell and returns its stdout
// split into lines, for command: collections (spec.md §4.4/§6).
func runShell(shell string) ([]string, error) {
	out, err := exec.Command("sh", "-c", shell).Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
