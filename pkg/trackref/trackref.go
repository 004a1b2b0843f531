// Package trackref resolves user-supplied Spotify references. A reference
// may be a bare resource ID, a spotify:<kind>:<id> URI, or an
// open.spotify.com link copied out of a client.
package trackref

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrUnrecognized marks references that match none of the accepted forms.
var ErrUnrecognized = errors.New("unrecognized spotify reference")

var (
	idPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

	spotifyDomains = map[string]bool{
		"open.spotify.com": true,
		"spotify.com":      true,
		"play.spotify.com": true,
	}
)

// TrackID extracts the track ID from a reference.
func TrackID(raw string) (string, error) {
	return resourceID(raw, "track")
}

// PlaylistID extracts the playlist ID from a reference.
func PlaylistID(raw string) (string, error) {
	return resourceID(raw, "playlist")
}

func resourceID(raw, resource string) (string, error) {
	ref := normalize(raw)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnrecognized)
	}

	if idPattern.MatchString(ref) {
		return ref, nil
	}

	if strings.HasPrefix(ref, "spotify:") {
		return uriID(ref, resource)
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return urlID(ref, resource)
	}

	return "", fmt.Errorf("%w: %q is neither an ID, a spotify: URI nor a link", ErrUnrecognized, ref)
}

func uriID(ref, resource string) (string, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed URI %q", ErrUnrecognized, ref)
	}
	if parts[1] != resource {
		return "", fmt.Errorf("%w: %q names a %s, expected a %s", ErrUnrecognized, ref, parts[1], resource)
	}
	if !idPattern.MatchString(parts[2]) {
		return "", fmt.Errorf("%w: %q carries an invalid ID", ErrUnrecognized, ref)
	}
	return parts[2], nil
}

func urlID(ref, resource string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if !spotifyDomains[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("%w: %q is not a spotify link", ErrUnrecognized, ref)
	}

	// Path shapes vary (/track/<id>, /intl-de/track/<id>); scan for the
	// resource segment and take what follows it.
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, segment := range segments {
		if segment != resource {
			continue
		}
		if i+1 >= len(segments) || !idPattern.MatchString(segments[i+1]) {
			return "", fmt.Errorf("%w: %q carries an invalid %s ID", ErrUnrecognized, ref, resource)
		}
		return segments[i+1], nil
	}

	return "", fmt.Errorf("%w: %q does not link to a %s", ErrUnrecognized, ref, resource)
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
