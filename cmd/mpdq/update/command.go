// Package update implements mpdq's "update" subcommand: force a
// refresh of the memoized tag database, stored playlists and
// collections cache.
package update

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/client"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/store"
)

// Command is the "update" subcommand.
type Command struct {
	Cfg    *client.Config
	Daemon musicindex.MusicDaemon
}

func (*Command) Name() string     { return "update" }
func (*Command) Synopsis() string { return "force a cache refresh" }
func (*Command) Usage() string {
	return `update:
	Rebuild the memoized tag database and reload the collections file.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c := cache.New(cmd.Cfg.CacheDir, cmd.Cfg.Profile())
	idx := musicindex.New(cmd.Daemon, c)

	log.Print("Refreshing tag database")
	if err := idx.Refresh(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "update: refreshing tags:", err)
		return subcommands.ExitFailure
	}

	st := store.New(cmd.Cfg.CollectionsPath, c, idx)
	log.Print("Reloading collections")
	if err := st.Feed(ctx, true); err != nil {
		fmt.Fprintln(os.Stderr, "update: reloading collections:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
