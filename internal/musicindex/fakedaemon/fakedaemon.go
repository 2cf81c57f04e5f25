// Package fakedaemon implements musicindex.MusicDaemon in memory, for
// use by tests throughout mpdq, the way internal/pkg/test provides
// fakes for derat/nup.
package fakedaemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/halfwit/mpdq/internal/musicindex"
)

// Daemon is an in-memory musicindex.MusicDaemon.
type Daemon struct {
	DBUpdate  int64
	Songs     []musicindex.SongInfo // library order
	Playlists map[string][]musicindex.SongRef
	Queue     []musicindex.SongRef
	Current   musicindex.SongRef
	HasCurrent bool
}

// New returns an empty Daemon.
func New() *Daemon {
	return &Daemon{Playlists: make(map[string][]musicindex.SongRef)}
}

func (d *Daemon) Stats(ctx context.Context) (musicindex.Stats, error) {
	return musicindex.Stats{DBUpdate: d.DBUpdate}, nil
}

func (d *Daemon) ListAllInfo(ctx context.Context) ([]musicindex.SongInfo, error) {
	return d.Songs, nil
}

func (d *Daemon) matches(info musicindex.SongInfo, field string) string {
	switch field {
	case "artist":
		return info.Artist
	case "album":
		return info.Album
	case "title":
		return info.Title
	case "track":
		return info.Track
	case "genre":
		return info.Genre
	case "date":
		return info.Date
	case "time":
		return info.Time
	case "filename":
		return info.Filename
	case "composer":
		return info.Composer
	case "performer":
		return info.Performer
	case "any":
		return info.Artist + " " + info.Album + " " + info.Title
	default:
		return ""
	}
}

func (d *Daemon) Search(ctx context.Context, field, pattern string) ([]musicindex.SongRef, error) {
	var out []musicindex.SongRef
	for _, s := range d.Songs {
		if strings.Contains(d.matches(s, field), pattern) {
			out = append(out, s.File)
		}
	}
	return out, nil
}

func (d *Daemon) Find(ctx context.Context, field, pattern string) ([]musicindex.SongRef, error) {
	var out []musicindex.SongRef
	for _, s := range d.Songs {
		if d.matches(s, field) == pattern {
			out = append(out, s.File)
		}
	}
	return out, nil
}

func (d *Daemon) SearchMultiple(ctx context.Context, fields map[string]string) ([]musicindex.SongRef, error) {
	var out []musicindex.SongRef
	for _, s := range d.Songs {
		ok := true
		for f, v := range fields {
			if !strings.Contains(d.matches(s, f), v) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s.File)
		}
	}
	return out, nil
}

func (d *Daemon) FindMultiple(ctx context.Context, fields map[string]string) ([]musicindex.SongRef, error) {
	var out []musicindex.SongRef
	for _, s := range d.Songs {
		ok := true
		for f, v := range fields {
			if d.matches(s, f) != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s.File)
		}
	}
	return out, nil
}

func (d *Daemon) GetTag(ctx context.Context, song musicindex.SongRef, name string) (string, error) {
	for _, s := range d.Songs {
		if s.File == song {
			return d.matches(s, name), nil
		}
	}
	return "", fmt.Errorf("fakedaemon: unknown song %q", song)
}

func (d *Daemon) StoredPlaylists(ctx context.Context) ([]string, error) {
	var out []string
	for name := range d.Playlists {
		out = append(out, name)
	}
	return out, nil
}

func (d *Daemon) StoredPlaylistsInfo(ctx context.Context) ([]musicindex.PlaylistInfo, error) {
	var out []musicindex.PlaylistInfo
	for name, songs := range d.Playlists {
		out = append(out, musicindex.PlaylistInfo{Name: name, Count: len(songs)})
	}
	return out, nil
}

func (d *Daemon) StoredPlaylistSongs(ctx context.Context, name string) ([]musicindex.SongRef, error) {
	return d.Playlists[name], nil
}

func (d *Daemon) AddSongsToStoredPlaylist(ctx context.Context, name string, songs []musicindex.SongRef) error {
	d.Playlists[name] = append(d.Playlists[name], songs...)
	return nil
}

func (d *Daemon) ClearStoredPlaylist(ctx context.Context, name string) error {
	d.Playlists[name] = nil
	return nil
}

func (d *Daemon) CurrentSong(ctx context.Context) (musicindex.SongRef, bool, error) {
	return d.Current, d.HasCurrent, nil
}

func (d *Daemon) QueuedSongs(ctx context.Context) ([]musicindex.SongRef, error) {
	return d.Queue, nil
}

func (d *Daemon) Replace(ctx context.Context, songs []musicindex.SongRef) error {
	d.Queue = append([]musicindex.SongRef{}, songs...)
	return nil
}
func (d *Daemon) Add(ctx context.Context, songs []musicindex.SongRef) error {
	d.Queue = append(d.Queue, songs...)
	return nil
}
func (d *Daemon) Insert(ctx context.Context, songs []musicindex.SongRef) error {
	d.Queue = append(songs, d.Queue...)
	return nil
}
func (d *Daemon) Remove(ctx context.Context, songs []musicindex.SongRef) error {
	rm := make(map[musicindex.SongRef]bool, len(songs))
	for _, s := range songs {
		rm[s] = true
	}
	var kept []musicindex.SongRef
	for _, s := range d.Queue {
		if !rm[s] {
			kept = append(kept, s)
		}
	}
	d.Queue = kept
	return nil
}
func (d *Daemon) Clear(ctx context.Context) error { d.Queue = nil; return nil }
func (d *Daemon) Crop(ctx context.Context) error  { return nil }
func (d *Daemon) Play(ctx context.Context, position int) error { return nil }
func (d *Daemon) PlayFile(ctx context.Context, song musicindex.SongRef) error { return nil }
