// Package files is the port to the file/media directory that owns attachment
// bytes. Only metadata needed for presentation and interpretation is read.
package files

import (
	"context"
	"errors"
	"strings"
)

// DefaultSource is assumed for attachment ids without a "source:" prefix.
const DefaultSource = "files"

// ErrNotFound is returned when the directory does not know a resource.
var ErrNotFound = errors.New("file not found")

// Metadata describes a stored file.
type Metadata struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Directory resolves attachment ids to file metadata.
type Directory interface {
	ResolveMetadata(ctx context.Context, id string) (*Metadata, error)
}

// ParseID splits an attachment id of the form "source:resourceId". Ids
// without a prefix belong to DefaultSource.
func ParseID(id string) (source, resourceID string) {
	id = strings.TrimSpace(id)
	if src, rest, ok := strings.Cut(id, ":"); ok && src != "" && rest != "" {
		return src, rest
	}
	return DefaultSource, id
}
