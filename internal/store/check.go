package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/halfwit/mpdq/internal/musicindex"
)

// MissingTags is one song with at least one empty core tag.
type MissingTags struct {
	Song    musicindex.SongRef
	Missing []string // subset of "artist", "album", "title", "track", in that order
}

// TagConflict is a group of songs that all share the same four core
// tags, so mpdq has no way to tell them apart by tag alone.
type TagConflict struct {
	Tags  musicindex.TagRecord
	Songs []musicindex.SongRef
}

// CheckReport is the result of CheckTags.
type CheckReport struct {
	Missing   []MissingTags
	Conflicts []TagConflict
}

// CheckTags scans every song's tags, reporting ones with missing core
// tags and grouping fully-tagged songs that collide on the same
// (artist, album, title, track) tuple, supplementing spec.md with
// mpdc_database.py:check's two-pass behavior.
func CheckTags(ctx context.Context, idx *musicindex.Index) (*CheckReport, error) {
	tags, err := idx.AllTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: reading tags: %w", err)
	}
	songs, err := idx.AllSongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: listing songs: %w", err)
	}

	report := &CheckReport{}
	byTuple := make(map[musicindex.TagRecord][]musicindex.SongRef)

	for _, song := range songs {
		rec := tags[song]
		var missing []string
		if rec.Artist == "" {
			missing = append(missing, "artist")
		}
		if rec.Album == "" {
			missing = append(missing, "album")
		}
		if rec.Title == "" {
			missing = append(missing, "title")
		}
		if rec.Track == "" {
			missing = append(missing, "track")
		}
		if len(missing) > 0 {
			report.Missing = append(report.Missing, MissingTags{Song: song, Missing: missing})
			continue
		}
		byTuple[rec] = append(byTuple[rec], song)
	}

	var tuples []musicindex.TagRecord
	for rec, group := range byTuple {
		if len(group) > 1 {
			tuples = append(tuples, rec)
		}
	}
	sort.Slice(tuples, func(i, j int) bool {
		a, b := tuples[i], tuples[j]
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Track < b.Track
	})
	for _, rec := range tuples {
		report.Conflicts = append(report.Conflicts, TagConflict{Tags: rec, Songs: byTuple[rec]})
	}

	return report, nil
}
