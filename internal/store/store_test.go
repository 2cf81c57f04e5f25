package store_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/musicindex/fakedaemon"
	"github.com/halfwit/mpdq/internal/store"
)

func writeCollections(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func newFixture(t *testing.T) (*fakedaemon.Daemon, *musicindex.Index) {
	t.Helper()
	d := fakedaemon.New()
	d.Songs = []musicindex.SongInfo{
		{File: "x.mp3", Artist: "A", Album: "L", Title: "t1", Track: "1"},
		{File: "y.mp3", Artist: "A", Album: "L", Title: "t2", Track: "2"},
	}
	idx := musicindex.New(d, cache.New(t.TempDir(), "test"))
	return d, idx
}

func TestFeedParsesExpressionAndSongsSections(t *testing.T) {
	_, idx := newFixture(t)
	path := writeCollections(t, `--favorites
songs:
    "A", "L", "t1", "1"


--by-a
a:artist:A


`)
	s := store.New(path, cache.New(t.TempDir(), "test"), idx)
	if err := s.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	fav, ok := s.Get("favorites")
	if !ok || len(fav.Songs) != 1 || fav.Songs[0] != "x.mp3" {
		t.Errorf("favorites = %+v; want one song x.mp3", fav)
	}
	byA, ok := s.Get("by-a")
	if !ok || strings.TrimSpace(byA.Expression) != "a:artist:A" {
		t.Errorf("by-a.Expression = %q; want %q", byA.Expression, "a:artist:A")
	}
}

func TestFeedMergesStoredPlaylistsAndSkipsCollisions(t *testing.T) {
	d, idx := newFixture(t)
	d.Playlists["party"] = []musicindex.SongRef{"y.mp3"}
	d.Playlists["favorites"] = []musicindex.SongRef{"x.mp3"}
	path := writeCollections(t, `--favorites
songs:
    "A", "L", "t1", "1"


`)
	s := store.New(path, cache.New(t.TempDir(), "test"), idx)
	if err := s.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	party, ok := s.Get("party")
	if !ok || len(party.Songs) != 1 || party.Songs[0] != "y.mp3" {
		t.Errorf("party = %+v; want native playlist merged in", party)
	}
	fav, ok := s.Get("favorites")
	if !ok || len(fav.Songs) != 1 || fav.Songs[0] != "x.mp3" {
		t.Errorf("favorites = %+v; want user collection to win over colliding playlist", fav)
	}
}

func TestAddSongsDropsMissingTagsForUserCollection(t *testing.T) {
	d, idx := newFixture(t)
	d.Songs = append(d.Songs, musicindex.SongInfo{File: "z.mp3", Artist: "", Album: "L", Title: "t3", Track: "3"})
	path := writeCollections(t, "")
	s := store.New(path, cache.New(t.TempDir(), "test"), idx)
	if err := s.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if err := s.AddSongs(context.Background(), "mine", []musicindex.SongRef{"x.mp3", "z.mp3"}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	mine, ok := s.Get("mine")
	if !ok || len(mine.Songs) != 1 || mine.Songs[0] != "x.mp3" {
		t.Errorf("mine.Songs = %v; want only x.mp3 (z.mp3 missing artist)", mine.Songs)
	}
	if !s.NeedsWrite() {
		t.Error("NeedsWrite() = false after AddSongs; want true")
	}
}

func TestRemoveSongsFiltersByEquality(t *testing.T) {
	_, idx := newFixture(t)
	path := writeCollections(t, `--mine
songs:
    "A", "L", "t1", "1"
    "A", "L", "t2", "2"


`)
	s := store.New(path, cache.New(t.TempDir(), "test"), idx)
	if err := s.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.RemoveSongs(context.Background(), "mine", []musicindex.SongRef{"x.mp3"}); err != nil {
		t.Fatalf("RemoveSongs: %v", err)
	}
	mine, _ := s.Get("mine")
	if len(mine.Songs) != 1 || mine.Songs[0] != "y.mp3" {
		t.Errorf("mine.Songs = %v; want only y.mp3 remaining", mine.Songs)
	}
}

func TestWriteFileRoundTripsThroughFeed(t *testing.T) {
	_, idx := newFixture(t)
	path := writeCollections(t, `--favorites
songs:
    "A", "L", "t1", "1"


`)
	c := cache.New(t.TempDir(), "test")
	s := store.New(path, c, idx)
	if err := s.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := s.AddSongs(context.Background(), "favorites", []musicindex.SongRef{"y.mp3"}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	if err := s.WriteFile(context.Background()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s2 := store.New(path, cache.New(t.TempDir(), "test2"), idx)
	if err := s2.Feed(context.Background(), true); err != nil {
		t.Fatalf("re-Feed after WriteFile: %v", err)
	}
	fav, ok := s2.Get("favorites")
	if !ok || len(fav.Songs) != 2 {
		t.Errorf("favorites after round-trip = %+v; want 2 songs", fav)
	}
}
