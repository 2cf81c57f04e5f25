// Package store implements CollectionStore (spec.md §4.4): it parses
// the human-readable collections file into an insertion-ordered map of
// aliases to structured records, merges in native stored playlists,
// serializes the map back to text, and owns the add/remove mutation
// operations.
package store

import (
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/warn"
)

const (
	collectionsCacheKey = "collections"
	playlistsCacheKey   = "playlists"
)

// Store is the CollectionStore.
type Store struct {
	path  string
	cache *cache.Cache
	idx   *musicindex.Index

	collections *collectionMap
	needsWrite  bool
}

// New returns a Store reading from and writing to the collections file
// at path.
func New(path string, c *cache.Cache, idx *musicindex.Index) *Store {
	return &Store{path: path, cache: c, idx: idx, collections: newCollectionMap()}
}

// NeedsWrite reports whether a mutation operation has left unsaved
// changes that WriteFile hasn't yet flushed.
func (s *Store) NeedsWrite() bool { return s.needsWrite }

// Get returns the collection named alias, if any. The returned value
// must not be mutated by callers other than Store itself.
func (s *Store) Get(alias string) (*Collection, bool) {
	return s.collections.get(alias)
}

// Feed loads collections, from cache when fresh or by re-parsing the
// file when force is set or the cache is stale (spec.md §4.4). After
// either path it merges in native stored playlists.
func (s *Store) Feed(ctx context.Context, force bool) error {
	playlistsInfo, err := s.idx.StoredPlaylistsInfo(ctx)
	if err != nil {
		return fmt.Errorf("store: listing stored playlists: %w", err)
	}

	var cachedPlaylists []musicindex.PlaylistInfo
	playlistsChanged := true
	if err := cache.ReadValue(s.cache, playlistsCacheKey, &cachedPlaylists); err == nil {
		playlistsChanged = !reflect.DeepEqual(cachedPlaylists, playlistsInfo)
	}

	fileInfo, statErr := os.Stat(s.path)
	if statErr != nil {
		return fmt.Errorf("store: collections file %v doesn't seem readable: %w", s.path, statErr)
	}

	stale := force || playlistsChanged || s.cache.StaleBefore(collectionsCacheKey, fileInfo.ModTime())

	if !stale {
		var cached []*Collection
		if err := cache.ReadValue(s.cache, collectionsCacheKey, &cached); err == nil {
			m := newCollectionMap()
			for _, c := range cached {
				m.set(c)
			}
			s.collections = m
		} else {
			stale = true
		}
	}

	if stale {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("store: reading %v: %w", s.path, err)
		}
		s.collections = parseFile(ctx, string(data), s.idx)
		if err := cache.WriteValue(s.cache, playlistsCacheKey, playlistsInfo); err != nil {
			warn.Warning("Can't write playlists cache: %v", err)
		}
		if err := s.UpdateCache(); err != nil {
			warn.Warning("Can't write collections cache: %v", err)
		}
	}

	return s.mergeStoredPlaylists(ctx)
}

// mergeStoredPlaylists adds one collection per native stored playlist
// not already present as an alias; a name collision is a warning, not
// an error (spec.md §3's alias-uniqueness invariant).
func (s *Store) mergeStoredPlaylists(ctx context.Context) error {
	names, err := s.idx.StoredPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("store: listing stored playlists: %w", err)
	}
	for _, name := range names {
		if existing, ok := s.collections.get(name); ok && existing.Kind != StoredPlaylist {
			warn.Warning("MPD playlist [%v] was ignored because a collection with the same name already exists", name)
			continue
		}
		songs, err := s.idx.StoredPlaylistSongs(ctx, name)
		if err != nil {
			return fmt.Errorf("store: reading stored playlist %v: %w", name, err)
		}
		s.collections.set(&Collection{Alias: name, Kind: StoredPlaylist, Songs: songs})
	}
	return nil
}

// AddSongs appends songs to alias's Songs list (spec.md §4.4). Songs
// missing any of the four core tags are dropped with a warning for
// user collections. If alias doesn't exist yet, a new user collection
// is created. For stored playlists, the songs are also persisted via
// MusicIndex.
func (s *Store) AddSongs(ctx context.Context, alias string, songs []musicindex.SongRef) error {
	c, exists := s.collections.get(alias)
	isPlaylist := exists && c.Kind == StoredPlaylist

	if !isPlaylist {
		var kept []musicindex.SongRef
		for _, song := range songs {
			tags, err := s.idx.GetTags(ctx, song)
			if err != nil {
				return fmt.Errorf("store: reading tags for %v: %w", song, err)
			}
			if !tags.AllPresent() {
				warn.Warning("[%v] was not added (missing tags)", song)
				continue
			}
			kept = append(kept, song)
		}
		songs = kept
	}

	if !exists {
		warn.Info("Collection [%v] will be created", alias)
		c = &Collection{Alias: alias, Kind: User}
		s.collections.set(c)
	}
	c.Songs = append(c.Songs, songs...)
	if isPlaylist {
		if err := s.idx.AddSongsToStoredPlaylist(ctx, alias, songs); err != nil {
			return fmt.Errorf("store: adding songs to stored playlist %v: %w", alias, err)
		}
	}
	s.needsWrite = true
	return nil
}

// RemoveSongs filters songs out of alias's Songs list by equality
// (spec.md §4.4). For stored playlists, the playlist is cleared and
// the remaining songs are re-added on the daemon.
func (s *Store) RemoveSongs(ctx context.Context, alias string, songs []musicindex.SongRef) error {
	c, exists := s.collections.get(alias)
	if !exists || c.Songs == nil {
		warn.Warning("Collection [%v] does not exist or contains no song to remove", alias)
		return nil
	}

	remove := make(map[musicindex.SongRef]bool, len(songs))
	for _, s := range songs {
		remove[s] = true
	}
	var remaining []musicindex.SongRef
	for _, song := range c.Songs {
		if !remove[song] {
			remaining = append(remaining, song)
		}
	}

	if c.Kind == StoredPlaylist {
		if err := s.idx.ClearStoredPlaylist(ctx, alias); err != nil {
			return fmt.Errorf("store: clearing stored playlist %v: %w", alias, err)
		}
		if err := s.idx.AddSongsToStoredPlaylist(ctx, alias, remaining); err != nil {
			return fmt.Errorf("store: re-adding songs to stored playlist %v: %w", alias, err)
		}
	}
	c.Songs = remaining
	s.needsWrite = true
	return nil
}

// WriteFile serializes user collections (not stored playlists) back to
// the collections file (spec.md §4.4).
func (s *Store) WriteFile(ctx context.Context) error {
	text := serialize(ctx, s.collections, s.idx)
	if err := os.WriteFile(s.path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("store: writing %v: %w", s.path, err)
	}
	s.needsWrite = false
	return nil
}

// UpdateCache writes the in-memory collections map to the cache.
func (s *Store) UpdateCache() error {
	aliases := s.collections.aliases()
	snapshot := make([]*Collection, len(aliases))
	for i, alias := range aliases {
		c, _ := s.collections.get(alias)
		snapshot[i] = c
	}
	return cache.WriteValue(s.cache, collectionsCacheKey, snapshot)
}
