package evidence

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a StatusChecker when the remote artifact no
// longer exists.
var ErrNotFound = errors.New("artifact not found")

// Status is the remote processing state of an uploaded artifact.
type Status int

const (
	StatusUnknown Status = iota
	StatusProcessing
	StatusActive
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessing:
		return "PROCESSING"
	case StatusActive:
		return "ACTIVE"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StatusChecker queries the remote state of an artifact.
type StatusChecker interface {
	ArtifactStatus(ctx context.Context, id string) (Status, error)
}

// Uploader sends a local file to the remote store.
type Uploader interface {
	UploadArtifact(ctx context.Context, path, mimeType, displayName string) (Handle, error)
}
