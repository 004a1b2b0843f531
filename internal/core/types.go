package core

import (
	"context"
	"errors"
	"time"
)

type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	Year     int
	Duration time.Duration
	URL      string
}

type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Owner       string
}

// TrackPage is one page of track search results. Next carries the opaque
// continuation reference issued by the server; it is empty on the last page
// and is never interpreted by consumers.
type TrackPage struct {
	Tracks []Track
	Total  int
	Next   string
}

type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
	Volume int
}

// ErrNoActiveDevice is returned by playback operations when the user has no
// Spotify Connect device available to receive the playback command.
var ErrNoActiveDevice = errors.New("no active spotify device")

// GenreSource supplies genre labels for random track discovery. Each call is
// an independent uniform draw over the catalog, sampling with replacement.
type GenreSource interface {
	Next() (string, error)
}

// TrackSearcher is the search capability consumed by the random track
// selector. NextTrackPage follows page.Next and must only be called when
// page.Next is non-empty.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, query string) (*TrackPage, error)
	NextTrackPage(ctx context.Context, page *TrackPage) (*TrackPage, error)
}

// Player starts playback on the user's current Spotify session.
type Player interface {
	PlayTracks(ctx context.Context, trackIDs []string) error
	PlayPlaylist(ctx context.Context, playlistID string) error
}

// MetadataClient resolves display metadata. Results feed user-facing blurbs
// only, never selection decisions.
type MetadataClient interface {
	GetTrack(ctx context.Context, trackID string) (*Track, error)
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)
}

// DeviceLister enumerates the user's Spotify Connect devices.
type DeviceLister interface {
	Devices(ctx context.Context) ([]Device, error)
}
