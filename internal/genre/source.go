// Package genre supplies uniformly random genre labels from a line-delimited
// catalog. A catalog ships embedded in the binary; an on-disk file can
// override it.
package genre

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"
)

//go:embed genres.txt
var embeddedCatalog []byte

var (
	// ErrCatalogUnavailable indicates the catalog resource could not be read.
	ErrCatalogUnavailable = errors.New("genre catalog unavailable")
	// ErrEmptyCatalog indicates the catalog contains no usable labels.
	ErrEmptyCatalog = errors.New("genre catalog has no entries")
)

// Source draws genre labels with uniform probability, sampling with
// replacement across calls. The catalog is re-read on every draw, so edits
// to an override file take effect between draws.
type Source struct {
	path string
	rng  *rand.Rand
}

// NewSource returns a Source reading from the file at path, or from the
// embedded catalog when path is empty. A nil rng gets a time-seeded one.
func NewSource(path string, rng *rand.Rand) *Source {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Genre picking doesn't require crypto-secure randomness
	}
	return &Source{path: path, rng: rng}
}

// Next returns one catalog label chosen uniformly at random.
func (s *Source) Next() (string, error) {
	labels, err := s.load()
	if err != nil {
		return "", err
	}
	return labels[s.rng.Intn(len(labels))], nil
}

// Labels returns every usable catalog label in file order.
func (s *Source) Labels() ([]string, error) {
	return s.load()
}

func (s *Source) load() ([]string, error) {
	data := embeddedCatalog
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		data = b
	}

	var labels []string
	for _, line := range strings.Split(string(data), "\n") {
		if label := strings.TrimSpace(line); label != "" {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCatalog, s.describe())
	}
	return labels, nil
}

func (s *Source) describe() string {
	if s.path == "" {
		return "embedded catalog"
	}
	return s.path
}
