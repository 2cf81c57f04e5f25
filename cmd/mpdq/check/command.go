// Package check implements mpdq's "check" subcommand: report songs
// with missing tags and groups of songs that collide on the same tag
// tuple (spec.md's supplemented mpdc_database.py:check feature).
package check

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/client"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/store"
)

// Command is the "check" subcommand.
type Command struct {
	Cfg    *client.Config
	Daemon musicindex.MusicDaemon
}

func (*Command) Name() string     { return "check" }
func (*Command) Synopsis() string { return "check for missing tags and tag-tuple conflicts" }
func (*Command) Usage() string {
	return `check:
	Report songs with missing tags and groups of songs sharing the
	same artist/album/title/track tuple.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c := cache.New(cmd.Cfg.CacheDir, cmd.Cfg.Profile())
	idx := musicindex.New(cmd.Daemon, c)

	report, err := store.CheckTags(ctx, idx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check:", err)
		return subcommands.ExitFailure
	}

	for _, m := range report.Missing {
		fmt.Printf("%v: missing tag(s): %v\n", m.Song, strings.Join(m.Missing, ", "))
	}
	if len(report.Conflicts) > 0 {
		fmt.Println()
		fmt.Println("Conflict(s) found:")
		fmt.Println("------------------")
		for _, conflict := range report.Conflicts {
			fmt.Printf("conflict with tags %v/%v/%v/%v:\n",
				conflict.Tags.Artist, conflict.Tags.Album, conflict.Tags.Title, conflict.Tags.Track)
			for _, song := range conflict.Songs {
				fmt.Println("  " + song)
			}
		}
	}
	return subcommands.ExitSuccess
}
