// Package action implements the playback operations behind the CLI verbs.
// Each action is built with everything it needs and runs once.
package action

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"heysiwi/internal/core"
	"heysiwi/internal/store"
	"heysiwi/pkg/printer"
	"heysiwi/pkg/trackref"
)

// Action is one user-requested playback operation, ready to run.
type Action interface {
	Execute(ctx context.Context) error
}

// Recorder persists one play for the history command.
type Recorder interface {
	Record(ctx context.Context, record store.PlayRecord) error
}

// RepeatTracker reports and updates how often a track has been played.
type RepeatTracker interface {
	Seen(trackID string) int
	Record(trackID string)
}

// TrackSelector picks a random playable track, reporting whether it found
// one.
type TrackSelector interface {
	Select(ctx context.Context) (core.Track, bool, error)
}

// ErrNoTrackFound is returned by the surprise action when every selection
// attempt came back empty.
var ErrNoTrackFound = errors.New("no track found")

// History source labels.
const (
	sourcePlaylist = "playlist"
	sourceSongs    = "songs"
	sourceSurprise = "surprise"
)

var (
	_ Action = (*PlayPlaylistAction)(nil)
	_ Action = (*PlaySongsAction)(nil)
	_ Action = (*PlayRandomAction)(nil)

	_ core.GenreSource = (*GenreRecorder)(nil)
)

// GenreRecorder decorates a GenreSource and remembers the label of the most
// recent draw. Draws happen strictly one at a time, so after a successful
// selection the remembered label is the genre that produced the pick.
type GenreRecorder struct {
	source core.GenreSource
	last   string
}

func NewGenreRecorder(source core.GenreSource) *GenreRecorder {
	return &GenreRecorder{source: source}
}

func (g *GenreRecorder) Next() (string, error) {
	label, err := g.source.Next()
	if err == nil {
		g.last = label
	}
	return label, err
}

// LastDrawn returns the label of the most recent successful draw, or empty
// when nothing has been drawn yet.
func (g *GenreRecorder) LastDrawn() string {
	return g.last
}

// PlayPlaylistAction starts context playback of one playlist.
type PlayPlaylistAction struct {
	player   core.Player
	metadata core.MetadataClient
	history  Recorder
	out      *printer.Printer
	logger   *zap.Logger
	ref      string
}

func NewPlayPlaylistAction(player core.Player, metadata core.MetadataClient, history Recorder, out *printer.Printer, logger *zap.Logger, ref string) *PlayPlaylistAction {
	return &PlayPlaylistAction{
		player:   player,
		metadata: metadata,
		history:  history,
		out:      out,
		logger:   logger,
		ref:      ref,
	}
}

func (a *PlayPlaylistAction) Execute(ctx context.Context) error {
	playlistID, err := trackref.PlaylistID(a.ref)
	if err != nil {
		return err
	}

	playlist, err := a.metadata.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}

	if err := a.player.PlayPlaylist(ctx, playlistID); err != nil {
		return err
	}

	a.out.Successf("▶️  Now playing playlist %s by %s (%d tracks).", playlist.Name, playlist.Owner, playlist.TrackCount)
	a.logger.Info("Started playlist playback",
		zap.String("playlist_id", playlistID),
		zap.String("name", playlist.Name))

	recordPlay(ctx, a.history, a.logger, store.PlayRecord{
		TrackID: playlistID,
		Title:   playlist.Name,
		Artist:  playlist.Owner,
		Source:  sourcePlaylist,
	})
	return nil
}

// recordPlay writes one history row. Playback already happened when this
// runs, so a failing write is logged instead of failing the command.
func recordPlay(ctx context.Context, history Recorder, logger *zap.Logger, record store.PlayRecord) {
	if err := history.Record(ctx, record); err != nil {
		logger.Warn("Failed to record play", zap.Error(err))
	}
}

// PlaySongsAction plays one or more tracks, in the order given.
type PlaySongsAction struct {
	player   core.Player
	metadata core.MetadataClient
	history  Recorder
	out      *printer.Printer
	logger   *zap.Logger
	refs     []string
}

func NewPlaySongsAction(player core.Player, metadata core.MetadataClient, history Recorder, out *printer.Printer, logger *zap.Logger, refs []string) *PlaySongsAction {
	return &PlaySongsAction{
		player:   player,
		metadata: metadata,
		history:  history,
		out:      out,
		logger:   logger,
		refs:     refs,
	}
}

func (a *PlaySongsAction) Execute(ctx context.Context) error {
	if len(a.refs) == 0 {
		return errors.New("no track references given")
	}

	// Resolve and look up everything before touching playback, so a typo in
	// the third reference doesn't interrupt whatever is already playing.
	ids := make([]string, 0, len(a.refs))
	tracks := make([]core.Track, 0, len(a.refs))
	for _, ref := range a.refs {
		id, err := trackref.TrackID(ref)
		if err != nil {
			return err
		}

		track, err := a.metadata.GetTrack(ctx, id)
		if err != nil {
			return err
		}

		ids = append(ids, id)
		tracks = append(tracks, *track)
	}

	if err := a.player.PlayTracks(ctx, ids); err != nil {
		return err
	}

	first := tracks[0]
	if len(tracks) == 1 {
		a.out.Successf("▶️  Now playing %s by %s.", first.Title, first.Artist)
	} else {
		a.out.Successf("▶️  Now playing %s by %s and %d more.", first.Title, first.Artist, len(tracks)-1)
	}
	a.logger.Info("Started track playback", zap.Strings("track_ids", ids))

	for _, track := range tracks {
		recordPlay(ctx, a.history, a.logger, store.PlayRecord{
			TrackID: track.ID,
			Title:   track.Title,
			Artist:  track.Artist,
			Source:  sourceSongs,
		})
	}
	return nil
}

// PlayRandomAction discovers a random track and plays it.
type PlayRandomAction struct {
	selector TrackSelector
	player   core.Player
	history  Recorder
	recent   RepeatTracker
	genres   *GenreRecorder
	out      *printer.Printer
	logger   *zap.Logger
}

func NewPlayRandomAction(selector TrackSelector, player core.Player, history Recorder, recent RepeatTracker, genres *GenreRecorder, out *printer.Printer, logger *zap.Logger) *PlayRandomAction {
	return &PlayRandomAction{
		selector: selector,
		player:   player,
		history:  history,
		recent:   recent,
		genres:   genres,
		out:      out,
		logger:   logger,
	}
}

func (a *PlayRandomAction) Execute(ctx context.Context) error {
	track, found, err := a.selector.Select(ctx)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoTrackFound
	}

	priorPlays := a.recent.Seen(track.ID)

	if err := a.player.PlayTracks(ctx, []string{track.ID}); err != nil {
		return err
	}

	genre := a.genres.LastDrawn()

	a.out.Successf("🎲 Now playing %s by %s.", track.Title, track.Artist)
	if track.Album != "" && track.Year > 0 {
		a.out.Infof("   %s (%d), found under %s.", track.Album, track.Year, genre)
	} else if genre != "" {
		a.out.Infof("   Found under %s.", genre)
	}
	switch {
	case priorPlays == 1:
		a.out.Infof("🔁 You've played this one once before.")
	case priorPlays > 1:
		a.out.Infof("🔁 You've played this one %d times before.", priorPlays)
	}

	a.logger.Info("Random track played",
		zap.String("track_id", track.ID),
		zap.String("genre", genre),
		zap.Int("prior_plays", priorPlays))

	a.recent.Record(track.ID)
	recordPlay(ctx, a.history, a.logger, store.PlayRecord{
		TrackID: track.ID,
		Title:   track.Title,
		Artist:  track.Artist,
		Source:  sourceSurprise,
		Genre:   genre,
	})
	return nil
}

// Describe returns the user-facing failure for an action error, or empty when
// the error should be shown as-is.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrNoTrackFound):
		return "😢 Couldn't find a track to play this time. Try again!"
	case errors.Is(err, core.ErrNoActiveDevice):
		return "🔇 No active Spotify device found. Open Spotify on some device and try again."
	case errors.Is(err, trackref.ErrUnrecognized):
		return fmt.Sprintf("🤔 %v.", err)
	default:
		return ""
	}
}
