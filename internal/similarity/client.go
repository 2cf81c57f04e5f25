package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpAttemptTimeout is the per-attempt timeout spec.md §4.3 specifies.
const httpAttemptTimeout = 15 * time.Second

// topTagsResponse mirrors the external music-metadata service's JSON
// shape (spec.md §6): {"toptags": {"tag": [...]}, "error": ..., "message": ...}.
type topTagsResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	TopTags struct {
		Tag []struct {
			Name  string      `json:"name"`
			Count json.Number `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

// HTTPBackend is a Backend implementation talking to the external
// tag-weight HTTP service via resty (github.com/go-resty/resty/v2),
// the way kirbs-btw-spotify-playlist-dataset/main.go drives a JSON API
// with client.R().Get(url). The per-attempt timeout is configured on
// the client; retrying across attempts is Service's responsibility
// (spec.md §4.3 treats "4 attempts" as the service-level contract, not
// an HTTP-transport-level one). get reports a logical error
// (out.Error != 0) as a *LogicalError so Service.request can tell it
// apart from a transport/HTTP-status failure and skip the retry.
type HTTPBackend struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

// NewHTTPBackend returns an HTTPBackend pointed at baseURL (e.g.
// "http://ws.example.com/2.0/") using apiKey for authentication.
func NewHTTPBackend(baseURL, apiKey string) *HTTPBackend {
	return &HTTPBackend{
		client:  resty.New().SetTimeout(httpAttemptTimeout),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (b *HTTPBackend) get(ctx context.Context, params map[string]string) (topTagsResponse, error) {
	var out topTagsResponse
	params["api_key"] = b.apiKey
	params["format"] = "json"
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(b.baseURL)
	if err != nil {
		return topTagsResponse{}, fmt.Errorf("similarity: request failed: %w", err)
	}
	if resp.IsError() {
		return topTagsResponse{}, fmt.Errorf("similarity: server returned %v", resp.Status())
	}
	if out.Error != 0 {
		return topTagsResponse{}, &LogicalError{Message: out.Message}
	}
	return out, nil
}

// ArtistTopTags implements Backend.
func (b *HTTPBackend) ArtistTopTags(ctx context.Context, artist string) ([]RawTag, error) {
	resp, err := b.get(ctx, map[string]string{
		"method": "artist.gettoptags",
		"artist": artist,
	})
	if err != nil {
		return nil, err
	}
	return toRawTags(resp), nil
}

// AlbumTopTags implements Backend.
func (b *HTTPBackend) AlbumTopTags(ctx context.Context, album, artist string) ([]RawTag, error) {
	resp, err := b.get(ctx, map[string]string{
		"method": "album.gettoptags",
		"artist": artist,
		"album":  album,
	})
	if err != nil {
		return nil, err
	}
	return toRawTags(resp), nil
}

func toRawTags(resp topTagsResponse) []RawTag {
	out := make([]RawTag, 0, len(resp.TopTags.Tag))
	for _, t := range resp.TopTags.Tag {
		count, _ := strconv.Atoi(t.Count.String())
		out = append(out, RawTag{Name: t.Name, Count: count})
	}
	return out
}
