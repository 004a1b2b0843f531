// Package picker implements random track discovery: draw a genre, search for
// tracks carrying it, sample one candidate across all result pages, and retry
// with a fresh genre a bounded number of times when a draw comes up empty.
package picker

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"heysiwi/internal/core"
)

// DefaultMaxRetries bounds how many genres a single Select call will try.
const DefaultMaxRetries = 5

// Genre labels go into the search filter verbatim; catalog labels contain no
// spaces so the filter needs no quoting.
const queryPrefix = "genre:"

// Selector picks one playable track at random. Attempts run strictly
// sequentially and share no state: every retry draws a fresh genre and walks
// a fresh result set.
type Selector struct {
	genres     core.GenreSource
	search     core.TrackSearcher
	rng        *rand.Rand
	maxRetries int
	logger     *zap.Logger
}

// NewSelector wires a Selector from its collaborators. A nil rng gets a
// time-seeded one, maxRetries below 1 falls back to DefaultMaxRetries, and a
// nil logger is replaced with a no-op.
func NewSelector(genres core.GenreSource, search core.TrackSearcher, rng *rand.Rand, maxRetries int, logger *zap.Logger) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Track discovery doesn't require crypto-secure randomness
	}
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		genres:     genres,
		search:     search,
		rng:        rng,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Select returns the first candidate produced by up to maxRetries attempts.
// ok is false when every attempt came up empty; that exhaustion is an
// expected outcome, not an error. Catalog failures and transport failures
// abort the loop and propagate unmodified: only an empty draw consumes a
// retry.
func (s *Selector) Select(ctx context.Context) (core.Track, bool, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		genre, err := s.genres.Next()
		if err != nil {
			return core.Track{}, false, err
		}

		track, ok, err := s.sampleGenre(ctx, genre)
		if err != nil {
			return core.Track{}, false, err
		}
		if ok {
			s.logger.Debug("Selected track",
				zap.String("genre", genre),
				zap.String("track_id", track.ID),
				zap.Int("attempt", attempt))
			return track, true, nil
		}

		s.logger.Debug("Genre yielded no candidate",
			zap.String("genre", genre),
			zap.Int("attempt", attempt))
	}
	return core.Track{}, false, nil
}

// sampleGenre runs one attempt: issue the genre search, then sample the
// resulting page sequence.
func (s *Selector) sampleGenre(ctx context.Context, genre string) (core.Track, bool, error) {
	page, err := s.search.SearchTracks(ctx, queryPrefix+genre)
	if err != nil {
		return core.Track{}, false, err
	}
	return s.sample(newPageIterator(ctx, s.search, page))
}

// sample draws one candidate per page uniformly, then one of the per-page
// candidates uniformly. The two-stage draw weighs every page equally, so
// tracks on short pages are more likely than tracks on full ones; that skew
// is the established selection behavior and is kept as is. A page without
// candidates abandons the whole attempt, discarding anything sampled so far.
func (s *Selector) sample(pages *pageIterator) (core.Track, bool, error) {
	var reservoir []core.Track
	for page, ok := pages.Next(); ok; page, ok = pages.Next() {
		if len(page.Tracks) == 0 {
			return core.Track{}, false, nil
		}
		reservoir = append(reservoir, page.Tracks[s.rng.Intn(len(page.Tracks))])
	}
	if err := pages.Err(); err != nil {
		return core.Track{}, false, err
	}
	if len(reservoir) == 0 {
		return core.Track{}, false, nil
	}
	return reservoir[s.rng.Intn(len(reservoir))], true, nil
}

// pageIterator walks one search result page at a time, following the
// server's continuation reference. The traversal is finite, lazy (page N+1
// is only fetched after the consumer is done with page N) and not
// restartable.
type pageIterator struct {
	ctx     context.Context
	search  core.TrackSearcher
	current *core.TrackPage
	started bool
	done    bool
	err     error
}

func newPageIterator(ctx context.Context, search core.TrackSearcher, first *core.TrackPage) *pageIterator {
	return &pageIterator{ctx: ctx, search: search, current: first}
}

// Next returns the next page of the traversal. After it returns false, Err
// distinguishes normal exhaustion from a failed continuation fetch.
func (it *pageIterator) Next() (*core.TrackPage, bool) {
	if it.done {
		return nil, false
	}
	if !it.started {
		it.started = true
		if it.current == nil {
			it.done = true
			return nil, false
		}
		return it.current, true
	}
	if it.current.Next == "" {
		it.done = true
		return nil, false
	}
	page, err := it.search.NextTrackPage(it.ctx, it.current)
	if err != nil {
		it.done = true
		it.err = err
		return nil, false
	}
	it.current = page
	return page, true
}

func (it *pageIterator) Err() error {
	return it.err
}
