package skymatch

import "fmt"

// ImageDecodeError reports malformed or unreadable image bytes.
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("could not read image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// InsufficientPointsError reports a point set too small to triangulate into
// more than one candidate triangle.
type InsufficientPointsError struct {
	Got  int
	Need int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("need more stars: got %d points, need at least %d", e.Got, e.Need)
}

// DatabaseUnavailableError reports a missing or corrupt reference database.
type DatabaseUnavailableError struct {
	Path string
	Err  error
}

func (e *DatabaseUnavailableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("reference database unavailable: %v", e.Err)
	}
	return fmt.Sprintf("reference database %s unavailable: %v", e.Path, e.Err)
}

func (e *DatabaseUnavailableError) Unwrap() error { return e.Err }
