// Package identity derives the opaque, stable ids used for tracks and
// playlists. Ids take the form "<source>:<numeric id>" so the same
// SoundCloud entity always maps to the same local id and ids from different
// sources can never collide.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Known id sources.
const (
	SourceSoundCloud = "soundcloud"
	SourceRekordbox  = "rekordbox"
)

var (
	// ErrInvalidID reports an id that does not follow the source:number shape.
	ErrInvalidID = errors.New("invalid entity id")
)

// TrackID builds the canonical track id for a source-scoped numeric id.
func TrackID(source string, numericID int64) (string, error) {
	return build(source, numericID)
}

// PlaylistID builds the canonical playlist id for a source-scoped numeric id.
// Playlists share the construction rule with tracks; the two id spaces are
// kept apart by the tables they key.
func PlaylistID(source string, numericID int64) (string, error) {
	return build(source, numericID)
}

func build(source string, numericID int64) (string, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return "", fmt.Errorf("%w: empty source", ErrInvalidID)
	}
	if numericID <= 0 {
		return "", fmt.Errorf("%w: non-positive numeric id %d", ErrInvalidID, numericID)
	}
	return source + ":" + strconv.FormatInt(numericID, 10), nil
}

// Parse splits an id into its source and numeric components.
func Parse(id string) (source string, numericID int64, err error) {
	head, tail, ok := strings.Cut(id, ":")
	if !ok || head == "" || tail == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	value, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || value <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return head, value, nil
}

// Valid reports whether id parses as a well-formed entity id.
func Valid(id string) bool {
	_, _, err := Parse(id)
	return err == nil
}
