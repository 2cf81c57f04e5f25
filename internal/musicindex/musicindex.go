// Package musicindex implements the MusicIndex façade described in
// spec.md §4.2: it is the single point of contact with the
// out-of-process music daemon, memoizing the daemon's tag database in
// the cache and refreshing it only when the daemon reports a newer DB
// version.
package musicindex

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/orderedset"
)

// tagsCacheKey is the cache entry holding the memoized file→TagRecord map.
const tagsCacheKey = "songs_tags"

// Index is the MusicIndex façade.
type Index struct {
	daemon MusicDaemon
	cache  *cache.Cache

	allSongs []SongRef        // memoized library order
	tags     map[SongRef]TagRecord
}

// New returns an Index backed by daemon and caching through c.
func New(daemon MusicDaemon, c *cache.Cache) *Index {
	return &Index{daemon: daemon, cache: c}
}

// Stats returns the daemon's reported statistics.
func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	return idx.daemon.Stats(ctx)
}

// AllSongs returns every song in library order (spec.md §4.2).
func (idx *Index) AllSongs(ctx context.Context) ([]SongRef, error) {
	if idx.allSongs != nil {
		return idx.allSongs, nil
	}
	infos, err := idx.daemon.ListAllInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("musicindex: listing songs: %w", err)
	}
	songs := make([]SongRef, len(infos))
	for i, info := range infos {
		songs[i] = info.File
	}
	idx.allSongs = songs
	return songs, nil
}

// AllTags returns the memoized file→TagRecord map, refreshing it from
// the daemon when the cached entry is stale relative to the daemon's
// reported DB-update epoch (spec.md §4.2's refresh policy).
func (idx *Index) AllTags(ctx context.Context) (map[SongRef]TagRecord, error) {
	stats, err := idx.daemon.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("musicindex: stats: %w", err)
	}

	stale := false
	if mtime, err := idx.cache.LastModified(tagsCacheKey); err == nil {
		stale = stale || mtime.Unix() < stats.DBUpdate
	} else {
		stale = true
	}

	if !stale {
		if idx.tags != nil {
			return idx.tags, nil
		}
		var cached map[SongRef]TagRecord
		if err := cache.ReadValue(idx.cache, tagsCacheKey, &cached); err == nil {
			idx.tags = cached
			return idx.tags, nil
		}
	}

	return idx.refreshTags(ctx)
}

// refreshTags rebuilds the tag map from the daemon and persists it.
func (idx *Index) refreshTags(ctx context.Context) (map[SongRef]TagRecord, error) {
	infos, err := idx.daemon.ListAllInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("musicindex: listing songs: %w", err)
	}
	tags := make(map[SongRef]TagRecord, len(infos))
	songs := make([]SongRef, len(infos))
	for i, info := range infos {
		songs[i] = info.File
		tags[info.File] = TagRecord{
			Artist: info.Artist,
			Album:  info.Album,
			Title:  info.Title,
			Track:  info.Track,
		}
	}
	idx.tags = tags
	idx.allSongs = songs
	if err := cache.WriteValue(idx.cache, tagsCacheKey, tags); err != nil {
		return tags, fmt.Errorf("musicindex: caching tags: %w", err)
	}
	return tags, nil
}

// Refresh forces a tag-map rebuild, as the "update" CLI command does.
func (idx *Index) Refresh(ctx context.Context) error {
	_, err := idx.refreshTags(ctx)
	return err
}

// GetTag returns one tag for one song. The four core tags are served
// from the memoized map; any other tag name queries the daemon
// directly (spec.md §4.2).
func (idx *Index) GetTag(ctx context.Context, song SongRef, name string) (string, error) {
	switch name {
	case "artist", "album", "title", "track":
		tags, err := idx.AllTags(ctx)
		if err != nil {
			return "", err
		}
		rec, ok := tags[song]
		if !ok {
			return "", nil
		}
		switch name {
		case "artist":
			return rec.Artist, nil
		case "album":
			return rec.Album, nil
		case "title":
			return rec.Title, nil
		default:
			return rec.Track, nil
		}
	default:
		return idx.daemon.GetTag(ctx, song, name)
	}
}

// GetTags returns the four core tags for song, in (artist, album,
// title, track) order, used by CollectionStore to serialize
// collections (spec.md §4.4, §6).
func (idx *Index) GetTags(ctx context.Context, song SongRef) (TagRecord, error) {
	tags, err := idx.AllTags(ctx)
	if err != nil {
		return TagRecord{}, err
	}
	return tags[song], nil
}

// Search returns songs whose field substring-contains pattern. field
// "extension" is handled locally as a case-insensitive suffix match on
// the file path (spec.md §4.2); otherwise the daemon performs the match.
func (idx *Index) Search(ctx context.Context, field, pattern string) ([]SongRef, error) {
	if field == "extension" {
		all, err := idx.AllSongs(ctx)
		if err != nil {
			return nil, err
		}
		var out []SongRef
		lower := strings.ToLower(pattern)
		for _, s := range all {
			if strings.HasSuffix(strings.ToLower(s), lower) {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return idx.daemon.Search(ctx, field, pattern)
}

// Find returns songs whose field exactly equals pattern. field
// "extension" is a case-sensitive suffix match (spec.md §4.2).
func (idx *Index) Find(ctx context.Context, field, pattern string) ([]SongRef, error) {
	if field == "extension" {
		all, err := idx.AllSongs(ctx)
		if err != nil {
			return nil, err
		}
		var out []SongRef
		for _, s := range all {
			if strings.HasSuffix(s, pattern) {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return idx.daemon.Find(ctx, field, pattern)
}

// SearchMultiple is the conjunction of several substring field predicates.
func (idx *Index) SearchMultiple(ctx context.Context, fields map[string]string) ([]SongRef, error) {
	return idx.daemon.SearchMultiple(ctx, fields)
}

// FindMultiple is the conjunction of several exact-match field predicates.
func (idx *Index) FindMultiple(ctx context.Context, fields map[string]string) ([]SongRef, error) {
	return idx.daemon.FindMultiple(ctx, fields)
}

// ListArtists returns the distinct artists appearing in the library.
func (idx *Index) ListArtists(ctx context.Context) ([]string, error) {
	tags, err := idx.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		if t.Artist != "" && !seen[t.Artist] {
			seen[t.Artist] = true
			out = append(out, t.Artist)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListAlbums returns distinct (album, artist) pairs where both are
// non-empty (spec.md §4.2).
func (idx *Index) ListAlbums(ctx context.Context) ([]AlbumKey, error) {
	tags, err := idx.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[AlbumKey]bool)
	var out []AlbumKey
	for _, t := range tags {
		if t.Album == "" || t.Artist == "" {
			continue
		}
		k := AlbumKey{Album: t.Album, Artist: t.Artist}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Artist != out[j].Artist {
			return out[i].Artist < out[j].Artist
		}
		return out[i].Album < out[j].Album
	})
	return out, nil
}

// StoredPlaylists lists the daemon's native playlists.
func (idx *Index) StoredPlaylists(ctx context.Context) ([]string, error) {
	return idx.daemon.StoredPlaylists(ctx)
}

// StoredPlaylistsInfo returns an opaque snapshot used only for equality
// comparison, to detect whether the collections cache needs rebuilding.
func (idx *Index) StoredPlaylistsInfo(ctx context.Context) ([]PlaylistInfo, error) {
	return idx.daemon.StoredPlaylistsInfo(ctx)
}

// StoredPlaylistSongs returns the songs in the named stored playlist.
func (idx *Index) StoredPlaylistSongs(ctx context.Context, name string) ([]SongRef, error) {
	return idx.daemon.StoredPlaylistSongs(ctx, name)
}

// AddSongsToStoredPlaylist appends songs to a stored playlist.
func (idx *Index) AddSongsToStoredPlaylist(ctx context.Context, name string, songs []SongRef) error {
	return idx.daemon.AddSongsToStoredPlaylist(ctx, name, songs)
}

// ClearStoredPlaylist empties a stored playlist.
func (idx *Index) ClearStoredPlaylist(ctx context.Context, name string) error {
	return idx.daemon.ClearStoredPlaylist(ctx, name)
}

// CurrentSong returns the currently-playing song, if any.
func (idx *Index) CurrentSong(ctx context.Context) (SongRef, bool, error) {
	return idx.daemon.CurrentSong(ctx)
}

// QueuedSongs returns the current play queue.
func (idx *Index) QueuedSongs(ctx context.Context) ([]SongRef, error) {
	return idx.daemon.QueuedSongs(ctx)
}

// Sort filters library order by membership in set, returning an
// OrderedSet in library order (spec.md §4.2's sort()).
func (idx *Index) Sort(ctx context.Context, set *orderedset.Set[SongRef]) (*orderedset.Set[SongRef], error) {
	all, err := idx.AllSongs(ctx)
	if err != nil {
		return nil, err
	}
	out := orderedset.New[SongRef]()
	for _, s := range all {
		if set.Contains(s) {
			out.Add(s)
		}
	}
	return out, nil
}
