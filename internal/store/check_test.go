package store_test

import (
	"context"
	"testing"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/musicindex/fakedaemon"
	"github.com/halfwit/mpdq/internal/store"
)

func TestCheckTagsReportsMissingTagsAndConflicts(t *testing.T) {
	d := fakedaemon.New()
	d.Songs = []musicindex.SongInfo{
		{File: "X", Artist: "A", Album: "L", Title: "t1", Track: "1"},
		{File: "Y", Artist: "A", Album: "L", Title: "t1", Track: "1"}, // duplicate tuple of X
		{File: "Z", Artist: "B", Album: "", Title: "t3", Track: "1"}, // missing album
	}
	idx := musicindex.New(d, cache.New(t.TempDir(), "test"))

	report, err := store.CheckTags(context.Background(), idx)
	if err != nil {
		t.Fatalf("CheckTags: %v", err)
	}

	if len(report.Missing) != 1 || report.Missing[0].Song != "Z" {
		t.Fatalf("Missing = %+v; want one entry for Z", report.Missing)
	}
	if len(report.Missing[0].Missing) != 1 || report.Missing[0].Missing[0] != "album" {
		t.Errorf("Missing[0].Missing = %v; want [album]", report.Missing[0].Missing)
	}

	if len(report.Conflicts) != 1 {
		t.Fatalf("Conflicts = %+v; want one conflict group", report.Conflicts)
	}
	conflict := report.Conflicts[0]
	if conflict.Tags.Artist != "A" || conflict.Tags.Album != "L" {
		t.Errorf("Conflicts[0].Tags = %+v; want artist A, album L", conflict.Tags)
	}
	assertSongRefs(t, conflict.Songs, "X", "Y")
}

func assertSongRefs(t *testing.T, got []musicindex.SongRef, want ...musicindex.SongRef) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	wantSet := make(map[musicindex.SongRef]bool, len(want))
	for _, w := range want {
		wantSet[w] = true
	}
	for _, g := range got {
		if !wantSet[g] {
			t.Fatalf("got %v; want %v (order-insensitive membership)", got, want)
		}
	}
}

func TestCheckTagsReportsNothingForCleanLibrary(t *testing.T) {
	d := fakedaemon.New()
	d.Songs = []musicindex.SongInfo{
		{File: "X", Artist: "A", Album: "L", Title: "t1", Track: "1"},
		{File: "Y", Artist: "B", Album: "M", Title: "t2", Track: "1"},
	}
	idx := musicindex.New(d, cache.New(t.TempDir(), "test"))

	report, err := store.CheckTags(context.Background(), idx)
	if err != nil {
		t.Fatalf("CheckTags: %v", err)
	}
	if len(report.Missing) != 0 || len(report.Conflicts) != 0 {
		t.Fatalf("CheckTags() = %+v; want empty report", report)
	}
}
