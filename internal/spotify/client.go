// Package spotify implements the search, playback and metadata capabilities
// on the Spotify Web API.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"heysiwi/internal/core"
)

const (
	// searchPageLimit is the page size requested from the search endpoint.
	searchPageLimit = 50
	// searchMarket pins results to one storefront so continuation URLs stay
	// consistent across a traversal.
	searchMarket = "US"
	// requestsPerSecond paces API calls well below Spotify's rate limit.
	requestsPerSecond = 10
	// releaseDateYearLength is the number of leading date characters that
	// hold the year.
	releaseDateYearLength = 4
)

// Client adapts an authenticated Spotify session to the capability
// interfaces the rest of the program consumes. The session is injected at
// construction; a Client is always ready to use.
type Client struct {
	api     *spotify.Client
	http    *http.Client
	limiter *rate.Limiter
	device  string
	logger  *zap.Logger
}

var (
	_ core.TrackSearcher  = (*Client)(nil)
	_ core.Player         = (*Client)(nil)
	_ core.MetadataClient = (*Client)(nil)
	_ core.DeviceLister   = (*Client)(nil)
)

// NewClient wraps an authenticated session. device optionally names the
// Spotify Connect device playback commands should target; empty means
// whatever device is currently active.
func NewClient(session *Session, device string, logger *zap.Logger) *Client {
	return &Client{
		api:     session.API,
		http:    session.HTTP,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		device:  device,
		logger:  logger,
	}
}

// SearchTracks issues one track search and returns the first result page.
func (c *Client) SearchTracks(ctx context.Context, query string) (*core.TrackPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	results, err := c.api.Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Limit(searchPageLimit), spotify.Market(searchMarket))
	if err != nil {
		return nil, fmt.Errorf("track search failed: %w", err)
	}
	if results.Tracks == nil {
		return &core.TrackPage{}, nil
	}

	page := convertTrackPage(results.Tracks)
	c.logger.Debug("Searched tracks",
		zap.String("query", query),
		zap.Int("count", len(page.Tracks)),
		zap.Bool("more", page.Next != ""))
	return page, nil
}

// NextTrackPage follows the continuation reference of page. The reference is
// an absolute URL minted by the search endpoint and returns the same
// envelope as the search itself, so it is fetched directly over the
// authenticated transport and decoded with the library's result types.
func (c *Client) NextTrackPage(ctx context.Context, page *core.TrackPage) (*core.TrackPage, error) {
	if page.Next == "" {
		return nil, errors.New("track page has no continuation reference")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.Next, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build continuation request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next result page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("continuation fetch returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var results spotify.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode result page: %w", err)
	}
	if results.Tracks == nil {
		return &core.TrackPage{}, nil
	}
	return convertTrackPage(results.Tracks), nil
}

// PlayTracks starts playback of the given tracks, in order, on the target
// device.
func (c *Client) PlayTracks(ctx context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return errors.New("no tracks to play")
	}

	uris := make([]spotify.URI, 0, len(trackIDs))
	for _, id := range trackIDs {
		uris = append(uris, spotify.URI("spotify:track:"+id))
	}

	opts := &spotify.PlayOptions{URIs: uris}
	if err := c.play(ctx, opts); err != nil {
		return err
	}

	c.logger.Info("Started track playback", zap.Strings("track_ids", trackIDs))
	return nil
}

// PlayPlaylist starts context playback of a playlist on the target device.
func (c *Client) PlayPlaylist(ctx context.Context, playlistID string) error {
	contextURI := spotify.URI("spotify:playlist:" + playlistID)
	opts := &spotify.PlayOptions{PlaybackContext: &contextURI}
	if err := c.play(ctx, opts); err != nil {
		return err
	}

	c.logger.Info("Started playlist playback", zap.String("playlist_id", playlistID))
	return nil
}

func (c *Client) play(ctx context.Context, opts *spotify.PlayOptions) error {
	deviceID, err := c.resolveDevice(ctx)
	if err != nil {
		return err
	}
	opts.DeviceID = deviceID

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.api.PlayOpt(ctx, opts); err != nil {
		return classifyPlaybackError(err)
	}
	return nil
}

// resolveDevice maps the configured device name to its ID. An empty name
// leaves routing to whatever device Spotify considers active.
func (c *Client) resolveDevice(ctx context.Context) (*spotify.ID, error) {
	if c.device == "" {
		return nil, nil
	}

	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, device := range devices {
		if strings.EqualFold(device.Name, c.device) {
			id := spotify.ID(device.ID)
			return &id, nil
		}
		names = append(names, device.Name)
	}
	return nil, fmt.Errorf("device %q not found, available: %s", c.device, strings.Join(names, ", "))
}

// Devices lists the user's Spotify Connect devices.
func (c *Client) Devices(ctx context.Context) ([]core.Device, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	playerDevices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]core.Device, 0, len(playerDevices))
	for _, d := range playerDevices {
		devices = append(devices, core.Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
			Volume: int(d.Volume),
		})
	}
	return devices, nil
}

// GetTrack fetches display metadata for one track.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*core.Track, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	track, err := c.api.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	converted := convertTrack(track)
	return &converted, nil
}

// GetPlaylist fetches display metadata for one playlist.
func (c *Client) GetPlaylist(ctx context.Context, playlistID string) (*core.Playlist, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	playlist, err := c.api.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	return &core.Playlist{
		ID:          string(playlist.ID),
		Name:        playlist.Name,
		Description: playlist.Description,
		TrackCount:  int(playlist.Tracks.Total),
		Owner:       playlist.Owner.DisplayName,
	}, nil
}

// classifyPlaybackError maps the player endpoints' 404 onto the no-device
// condition commands report to the user.
func classifyPlaybackError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %v", core.ErrNoActiveDevice, err)
	}
	return fmt.Errorf("playback request failed: %w", err)
}

func convertTrackPage(page *spotify.FullTrackPage) *core.TrackPage {
	tracks := make([]core.Track, 0, len(page.Tracks))
	for i := range page.Tracks {
		tracks = append(tracks, convertTrack(&page.Tracks[i]))
	}
	return &core.TrackPage{
		Tracks: tracks,
		Total:  int(page.Total),
		Next:   page.Next,
	}
}

func convertTrack(track *spotify.FullTrack) core.Track {
	var artists []string
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	var year int
	if len(track.Album.ReleaseDate) >= releaseDateYearLength {
		if _, err := fmt.Sscanf(track.Album.ReleaseDate[:releaseDateYearLength], "%d", &year); err != nil {
			year = 0
		}
	}

	return core.Track{
		ID:       string(track.ID),
		Title:    track.Name,
		Artist:   strings.Join(artists, ", "),
		Album:    track.Album.Name,
		Year:     year,
		Duration: time.Duration(track.Duration) * time.Millisecond,
		URL:      track.ExternalURLs["spotify"],
	}
}
