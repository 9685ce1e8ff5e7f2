package workspace

import (
	"errors"
	"strings"

	"chithravani/internal/preview"
)

var (
	ErrNotFound           = errors.New("workspace not found")
	ErrClosed             = errors.New("workspace closed")
	ErrBusy               = errors.New("story generation in progress")
	ErrNoImages           = errors.New("please upload at least one image")
	ErrCharactersRequired = errors.New("characters are required")
	ErrUnknownGenre       = errors.New("unknown genre")
	ErrImageNotFound      = errors.New("image not found")
	ErrInvalidIndex       = errors.New("image index out of range")
	ErrInvalidTransition  = errors.New("invalid step transition")
)

type Status string

const (
	StatusReady     Status = "ready"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
)

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AcceptedImageType reports whether uploads of mimeType are taken.
func AcceptedImageType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return acceptedTypes[mimeType]
}

// Source is the binary payload of one accepted image.
type Source struct {
	Name     string
	MimeType string
	Data     []byte
}

type Entry struct {
	ID      string
	Source  Source
	Preview preview.Handle
	Status  Status
}

// Previews issues and revokes display references for entries.
// *preview.Registry satisfies it.
type Previews interface {
	Issue(name, mimeType string, data []byte) preview.Handle
	Release(h preview.Handle) bool
}

// GenerationRequest is what gets sent to the story service. Images keep
// the list order.
type GenerationRequest struct {
	Images     []Source
	Genre      Genre
	Characters string
}
