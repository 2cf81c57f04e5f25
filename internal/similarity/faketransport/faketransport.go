// Package faketransport implements similarity.Backend in memory for tests.
package faketransport

import (
	"context"
	"fmt"

	"github.com/halfwit/mpdq/internal/similarity"
)

// Backend is an in-memory similarity.Backend.
type Backend struct {
	ArtistTags map[string][]similarity.RawTag
	AlbumTags  map[string][]similarity.RawTag // keyed by album+"/"+artist

	// Fail simulates a transport/HTTP-status failure: every call
	// fails and Service.request retries it up to its attempt limit.
	Fail bool
	// LogicalErr, when non-empty, simulates a successfully-parsed
	// response reporting an API-level failure: every call returns a
	// *similarity.LogicalError and Service.request must not retry it.
	LogicalErr string

	// Calls counts every ArtistTopTags/AlbumTopTags invocation, so
	// tests can assert how many attempts Service.request actually made.
	Calls int
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{ArtistTags: map[string][]similarity.RawTag{}, AlbumTags: map[string][]similarity.RawTag{}}
}

func (b *Backend) ArtistTopTags(ctx context.Context, artist string) ([]similarity.RawTag, error) {
	b.Calls++
	if b.Fail {
		return nil, fmt.Errorf("faketransport: forced failure")
	}
	if b.LogicalErr != "" {
		return nil, &similarity.LogicalError{Message: b.LogicalErr}
	}
	return b.ArtistTags[artist], nil
}

func (b *Backend) AlbumTopTags(ctx context.Context, album, artist string) ([]similarity.RawTag, error) {
	b.Calls++
	if b.Fail {
		return nil, fmt.Errorf("faketransport: forced failure")
	}
	if b.LogicalErr != "" {
		return nil, &similarity.LogicalError{Message: b.LogicalErr}
	}
	return b.AlbumTags[album+"/"+artist], nil
}
