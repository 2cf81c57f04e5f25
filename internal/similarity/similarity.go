// Package similarity implements the SimilarityService described in
// spec.md §4.3: a client for an external tag-weight service (modeled
// on mpdc's Last.fm integration, mpdc/libs/lastfmhelper.py) with
// cosine-similarity ranking, rate limiting, retries, and a disk-backed
// tag-weight cache.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/warn"
)

// LogicalError indicates the backend understood the request and
// replied, but the response itself reported an API-level failure
// (e.g. a bad API key) rather than a transport/HTTP failure. Per
// mpdc/libs/lastfmhelper.py, these are never retried: request returns
// immediately on a LogicalError, consuming none of its attempts.
type LogicalError struct {
	Message string
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("similarity: service error: %s", e.Message)
}

// TagWeights is a sparse map from lower-cased tag name to positive count.
type TagWeights map[string]int

const (
	artistsCacheKey = "artists_tags"
	albumsCacheKey  = "albums_tags"

	defaultMinSimilarity = 0.30
	requestInterval      = time.Second
)

// noiseTags lists substrings that disqualify a tag as noise, ported
// directly from mpdc/libs/lastfmhelper.py's bad_tags list.
var noiseTags = []string{
	"beautiful", "awesome", "epic", "masterpiece", "favorite",
	"favourite", "recommended", "bands i", "band i", "best album",
	"my album", "vinyl i", "album i", "albums i", "album you",
	"albums you",
}

// RawTag is one tag/count pair as reported by the backend, before
// sanitization.
type RawTag struct {
	Name  string
	Count int
}

// Backend is the HTTP contract the service consumes (spec.md §6's
// SimilarityBackend). Retries, timeouts and rate limiting are handled
// by Service, not Backend implementations.
type Backend interface {
	ArtistTopTags(ctx context.Context, artist string) ([]RawTag, error)
	AlbumTopTags(ctx context.Context, album, artist string) ([]RawTag, error)
}

// ScoredArtist pairs an artist with its cosine-similarity score.
type ScoredArtist struct {
	Artist string
	Score  float64
}

// ScoredAlbum pairs an (album, artist) pair with its cosine-similarity score.
type ScoredAlbum struct {
	Key   musicindex.AlbumKey
	Score float64
}

// Service is the SimilarityService (spec.md §4.3).
type Service struct {
	backend Backend
	cache   *cache.Cache

	minSimilarity float64

	mu          sync.Mutex
	lastRequest time.Time

	artistsTags map[string]TagWeights
	albumsTags  map[musicindex.AlbumKey]TagWeights
}

// New returns a Service backed by backend, persisting tag weights
// through c. minSimilarityPercent is 0-100, matching the user-facing
// configuration knob in spec.md §4.3; 0 selects the default (30%).
func New(backend Backend, c *cache.Cache, minSimilarityPercent int) *Service {
	s := &Service{
		backend:       backend,
		cache:         c,
		minSimilarity: defaultMinSimilarity,
	}
	if minSimilarityPercent > 0 {
		s.minSimilarity = float64(minSimilarityPercent) / 100
	}

	var artists map[string]TagWeights
	if err := cache.ReadValue(c, artistsCacheKey, &artists); err == nil {
		s.artistsTags = artists
	} else {
		s.artistsTags = make(map[string]TagWeights)
	}
	var albums map[musicindex.AlbumKey]TagWeights
	if err := cache.ReadValue(c, albumsCacheKey, &albums); err == nil {
		s.albumsTags = albums
	} else {
		s.albumsTags = make(map[musicindex.AlbumKey]TagWeights)
	}
	return s
}

// throttle blocks until at least requestInterval has passed since the
// previous request, enforcing spec.md §4.3/§5's ≥1s rate limit using a
// monotonic last-request timestamp.
func (s *Service) throttle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wait := requestInterval - time.Since(s.lastRequest); wait > 0 {
		time.Sleep(wait)
	}
	s.lastRequest = time.Now()
}

// sanitize lower-cases tag names, drops noise tags and zero-count tags
// (spec.md §4.3).
func sanitize(raw []RawTag) TagWeights {
	out := make(TagWeights)
	for _, t := range raw {
		name := strings.ToLower(t.Name)
		if t.Count == 0 {
			continue
		}
		noisy := false
		for _, bad := range noiseTags {
			if strings.Contains(name, bad) {
				noisy = true
				break
			}
		}
		if !noisy {
			out[name] = t.Count
		}
	}
	return out
}

// GetArtistTags returns the memoized tags for artist. If update is
// true, it fetches fresh tags from the backend (subject to rate
// limiting and retries); otherwise it returns whatever is cached, or
// an empty map if the artist is unknown (spec.md §4.3).
func (s *Service) GetArtistTags(ctx context.Context, artist string, update bool) TagWeights {
	if !update {
		if len(s.artistsTags) == 0 {
			warn.Warning("You should update the similarity database")
		}
		return s.artistsTags[artist]
	}

	raw, err := s.request(ctx, func(ctx context.Context) ([]RawTag, error) {
		return s.backend.ArtistTopTags(ctx, artist)
	})
	if err != nil {
		warn.Warning("Can't fetch tags for artist %q: %v", artist, err)
		return nil
	}
	return sanitize(raw)
}

// GetAlbumTags is GetArtistTags's symmetric counterpart for albums.
func (s *Service) GetAlbumTags(ctx context.Context, album, artist string, update bool) TagWeights {
	key := musicindex.AlbumKey{Album: album, Artist: artist}
	if !update {
		if len(s.albumsTags) == 0 {
			warn.Warning("You should update the similarity database")
		}
		return s.albumsTags[key]
	}

	raw, err := s.request(ctx, func(ctx context.Context) ([]RawTag, error) {
		return s.backend.AlbumTopTags(ctx, album, artist)
	})
	if err != nil {
		warn.Warning("Can't fetch tags for album %q by %q: %v", album, artist, err)
		return nil
	}
	return sanitize(raw)
}

// request performs fn under the rate limiter with up to 4 attempts on
// transport/HTTP-status failures, matching spec.md §4.3's retry
// contract. A LogicalError is a successfully-parsed response reporting
// an API-level failure, not a transport one, and returns immediately
// without consuming a retry attempt. Each individual attempt's own
// per-attempt timeout is the caller's (HTTP backend's) concern.
func (s *Service) request(ctx context.Context, fn func(context.Context) ([]RawTag, error)) ([]RawTag, error) {
	const maxAttempts = 4
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		s.throttle()
		raw, err := fn(ctx)
		if err == nil {
			return raw, nil
		}
		var logicalErr *LogicalError
		if errors.As(err, &logicalErr) {
			warn.Warning("similarity request failed: %v", err)
			return nil, err
		}
		lastErr = err
		warn.Warning("similarity request failed (attempt %d/%d): %v", attempt+1, maxAttempts, err)
	}
	return nil, fmt.Errorf("can't send the request after %d attempts: %w", maxAttempts, lastErr)
}

// similarityScore computes the cosine similarity of two sparse tag maps,
// per spec.md §4.3's formula.
func similarityScore(a, b TagWeights) float64 {
	var scalar float64
	for k, av := range a {
		if bv, ok := b[k]; ok {
			scalar += float64(av) * float64(bv)
		}
	}
	var normA, normB float64
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return scalar / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarArtists ranks every artist in the persisted tag database by
// cosine similarity against query, keeping only scores strictly above
// the configured floor, sorted descending (spec.md §4.3).
func (s *Service) SimilarArtists(query TagWeights) []ScoredArtist {
	if len(s.artistsTags) == 0 {
		warn.Warning("You should update the similarity database")
		return nil
	}
	var out []ScoredArtist
	for artist, tags := range s.artistsTags {
		if len(tags) == 0 {
			continue
		}
		if score := similarityScore(tags, query); score > s.minSimilarity {
			out = append(out, ScoredArtist{Artist: artist, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SimilarAlbums is SimilarArtists's symmetric counterpart for albums.
func (s *Service) SimilarAlbums(query TagWeights) []ScoredAlbum {
	if len(s.albumsTags) == 0 {
		warn.Warning("You should update the similarity database")
		return nil
	}
	var out []ScoredAlbum
	for key, tags := range s.albumsTags {
		if len(tags) == 0 {
			continue
		}
		if score := similarityScore(tags, query); score > s.minSimilarity {
			out = append(out, ScoredAlbum{Key: key, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SearchArtists yields artists whose persisted tags substring-contain pattern.
func (s *Service) SearchArtists(pattern string) []string {
	var out []string
	for artist, tags := range s.artistsTags {
		for tag := range tags {
			if strings.Contains(tag, pattern) {
				out = append(out, artist)
				break
			}
		}
	}
	return out
}

// FindArtists yields artists with an exact tag equal to pattern.
func (s *Service) FindArtists(pattern string) []string {
	var out []string
	for artist, tags := range s.artistsTags {
		if _, ok := tags[pattern]; ok {
			out = append(out, artist)
		}
	}
	return out
}

// SearchAlbums yields (album, artist) pairs whose persisted tags
// substring-contain pattern.
func (s *Service) SearchAlbums(pattern string) []musicindex.AlbumKey {
	var out []musicindex.AlbumKey
	for key, tags := range s.albumsTags {
		for tag := range tags {
			if strings.Contains(tag, pattern) {
				out = append(out, key)
				break
			}
		}
	}
	return out
}

// FindAlbums yields (album, artist) pairs with an exact tag equal to pattern.
func (s *Service) FindAlbums(pattern string) []musicindex.AlbumKey {
	var out []musicindex.AlbumKey
	for key, tags := range s.albumsTags {
		if _, ok := tags[pattern]; ok {
			out = append(out, key)
		}
	}
	return out
}

// SyncArtists refreshes the persisted artist tag database against the
// current library artist list: extras are dropped, missing artists are
// fetched, and the result is persisted. This is the only path that
// populates the artists_tags cache entry (spec.md §3/§4.3), supplementing
// spec.md with mpdc_database.py:lastfm_update_artists's behavior.
func (s *Service) SyncArtists(ctx context.Context, libraryArtists []string) error {
	known := make(map[string]bool, len(libraryArtists))
	for _, a := range libraryArtists {
		known[a] = true
	}
	extra := 0
	for a := range s.artistsTags {
		if !known[a] {
			delete(s.artistsTags, a)
			extra++
		}
	}
	warn.Info("%d extra artist(s)", extra)

	missing := 0
	for _, a := range libraryArtists {
		if _, ok := s.artistsTags[a]; !ok {
			missing++
		}
	}
	warn.Info("%d missing artist(s)", missing)
	for _, a := range libraryArtists {
		if _, ok := s.artistsTags[a]; ok {
			continue
		}
		s.artistsTags[a] = s.GetArtistTags(ctx, a, true)
	}
	return cache.WriteValue(s.cache, artistsCacheKey, s.artistsTags)
}

// SyncAlbums is SyncArtists's symmetric counterpart for albums.
func (s *Service) SyncAlbums(ctx context.Context, libraryAlbums []musicindex.AlbumKey) error {
	known := make(map[musicindex.AlbumKey]bool, len(libraryAlbums))
	for _, a := range libraryAlbums {
		known[a] = true
	}
	extra := 0
	for a := range s.albumsTags {
		if !known[a] {
			delete(s.albumsTags, a)
			extra++
		}
	}
	warn.Info("%d extra album(s)", extra)

	missing := 0
	for _, a := range libraryAlbums {
		if _, ok := s.albumsTags[a]; !ok {
			missing++
		}
	}
	warn.Info("%d missing album(s)", missing)
	for _, a := range libraryAlbums {
		if _, ok := s.albumsTags[a]; ok {
			continue
		}
		s.albumsTags[a] = s.GetAlbumTags(ctx, a.Album, a.Artist, true)
	}
	return cache.WriteValue(s.cache, albumsCacheKey, s.albumsTags)
}
