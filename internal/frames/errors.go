package frames

import "errors"

var (
	// ErrFetch marks a single frame whose backing object could not be read.
	ErrFetch = errors.New("frame fetch failed")
	// ErrNoFramesAvailable is returned when no frame of a job could be resolved.
	ErrNoFramesAvailable = errors.New("no frames available")
)
