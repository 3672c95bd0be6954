// Package opencv provides the webcam capture source and the MOG2 background
// subtractor segmenter. Both need OpenCV and are compiled in with the gocv
// build tag; without it the constructors return ErrNotBuilt.
package opencv

import "errors"

// ErrNotBuilt is returned by constructors in binaries built without gocv
var ErrNotBuilt = errors.New("opencv: built without the gocv tag")

// ErrClosed is returned by a segmenter used after Close
var ErrClosed = errors.New("opencv: segmenter closed")
