package musicindex

import "context"

// Stats describes the daemon's library statistics.
type Stats struct {
	// DBUpdate is the epoch at which the daemon's tag database was last
	// rebuilt. MusicIndex uses it to decide whether the memoized tag
	// map is stale (spec.md §4.2).
	DBUpdate int64
}

// SongInfo is everything the daemon reports about one song.
type SongInfo struct {
	File     SongRef
	Artist   string
	Album    string
	Title    string
	Track    string
	Genre    string
	Date     string
	Time     string
	Filename string
	Composer string
	Performer string
}

// MusicDaemon is the collaborator interface MusicIndex consumes
// (spec.md §6). It abstracts over the out-of-process music daemon;
// mpdq never speaks the daemon's wire protocol directly — that detail
// is explicitly out of scope (spec.md §1).
type MusicDaemon interface {
	// Stats returns the daemon's current library statistics.
	Stats(ctx context.Context) (Stats, error)

	// ListAllInfo returns every song the daemon knows about, in library
	// order, with full tag info.
	ListAllInfo(ctx context.Context) ([]SongInfo, error)

	// Search returns songs whose field substring-contains pattern.
	// Case sensitivity is up to the daemon (spec.md §4.2).
	Search(ctx context.Context, field, pattern string) ([]SongRef, error)
	// Find returns songs whose field exactly equals pattern.
	Find(ctx context.Context, field, pattern string) ([]SongRef, error)
	// SearchMultiple is the conjunction of several substring field predicates.
	SearchMultiple(ctx context.Context, fields map[string]string) ([]SongRef, error)
	// FindMultiple is the conjunction of several exact-match field predicates.
	FindMultiple(ctx context.Context, fields map[string]string) ([]SongRef, error)

	// GetTag returns one tag for one song directly from the daemon,
	// for tags outside the four memoized core tags (spec.md §4.2).
	GetTag(ctx context.Context, song SongRef, name string) (string, error)

	// StoredPlaylists lists the daemon's native playlists.
	StoredPlaylists(ctx context.Context) ([]string, error)
	// StoredPlaylistsInfo returns an opaque per-playlist snapshot used
	// only for equality comparison.
	StoredPlaylistsInfo(ctx context.Context) ([]PlaylistInfo, error)
	// StoredPlaylistSongs returns the songs in the named stored playlist.
	StoredPlaylistSongs(ctx context.Context, name string) ([]SongRef, error)
	// AddSongsToStoredPlaylist appends songs to a stored playlist.
	AddSongsToStoredPlaylist(ctx context.Context, name string, songs []SongRef) error
	// ClearStoredPlaylist empties a stored playlist.
	ClearStoredPlaylist(ctx context.Context, name string) error

	// CurrentSong returns the currently-playing song, if any.
	CurrentSong(ctx context.Context) (SongRef, bool, error)
	// QueuedSongs returns the songs in the current play queue.
	QueuedSongs(ctx context.Context) ([]SongRef, error)

	// Playlist mutation, surfaced to upper layers only (spec.md §4.2) —
	// the core evaluator never calls these; they exist so CLI
	// subcommands built on MusicIndex can drive playback.
	Replace(ctx context.Context, songs []SongRef) error
	Add(ctx context.Context, songs []SongRef) error
	Insert(ctx context.Context, songs []SongRef) error
	Remove(ctx context.Context, songs []SongRef) error
	Clear(ctx context.Context) error
	Crop(ctx context.Context) error
	Play(ctx context.Context, position int) error
	PlayFile(ctx context.Context, song SongRef) error
}
