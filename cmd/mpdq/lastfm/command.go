// Package lastfm implements mpdq's "lastfm" subcommand: sync the
// similarity service's persisted tag weights against the current
// library (mpdc_database.py:lastfm_update_artists/_albums).
package lastfm

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
	"github.com/halfwit/mpdq/internal/similarity"
)

// Command is the "lastfm" subcommand: `lastfm update artists|albums`.
type Command struct {
	Cfg    *client.Config
	Daemon musicindex.MusicDaemon
}

func (*Command) Name() string     { return "lastfm" }
func (*Command) Synopsis() string { return "sync similarity tag weights against the library" }
func (*Command) Usage() string {
	return `lastfm update artists|albums:
	Fetch tag weights for every library artist or album missing from
	the similarity cache, and drop cached entries no longer present in
	the library.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {}

func (cmd *Command) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) != 2 || args[0] != "update" || (args[1] != "artists" && args[1] != "albums") {
		fmt.Fprintln(os.Stderr, "lastfm: usage: lastfm update artists|albums")
		return subcommands.ExitUsageError
	}

	c := cache.New(cmd.Cfg.CacheDir, cmd.Cfg.Profile())
	idx := musicindex.New(cmd.Daemon, c)
	backend := similarity.NewHTTPBackend(cmd.Cfg.SimilarityURL, cmd.Cfg.SimilarityAPIKey)
	sim := similarity.New(backend, c, cmd.Cfg.MinSimilarityPercent)

	switch args[1] {
	case "artists":
		artists, err := idx.ListArtists(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lastfm: listing artists:", err)
			return subcommands.ExitFailure
		}
		log.Printf("Syncing %d artist(s)", len(artists))
		if err := sim.SyncArtists(ctx, artists); err != nil {
			fmt.Fprintln(os.Stderr, "lastfm: syncing artists:", err)
			return subcommands.ExitFailure
		}
	case "albums":
		albums, err := idx.ListAlbums(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "lastfm: listing albums:", err)
			return subcommands.ExitFailure
		}
		log.Printf("Syncing %d album(s)", len(albums))
		if err := sim.SyncAlbums(ctx, albums); err != nil {
			fmt.Fprintln(os.Stderr, "lastfm: syncing albums:", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}
