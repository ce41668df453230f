// Package storage lists, downloads and marks images in an account's remote
// folder.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
)

// ProcessedMarker is inserted before the extension of an image once it has
// been published. Its presence anywhere in a name means "already processed".
const ProcessedMarker = "_enviada"

var (
	ErrRemoteAuth          = errors.New("remote storage rejected the credentials")
	ErrFolderNotFound      = errors.New("remote folder not found")
	ErrUnsupportedProvider = errors.New("unsupported storage provider")
)

type RemoteImage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// RenameError reports a failed MarkProcessed. The image was published, so
// callers treat it as a warning.
type RenameError struct {
	ImageID string
	NewName string
	Err     error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("renaming %s to %s: %v", e.ImageID, e.NewName, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

type Scanner interface {
	// ResolveFolder returns the display name of folderRef.
	ResolveFolder(ctx context.Context, folderRef string) (string, error)
	// ListUnprocessed returns every image in folderRef whose name lacks
	// ProcessedMarker, following pagination to the end.
	ListUnprocessed(ctx context.Context, folderRef string) ([]RemoteImage, error)
	Download(ctx context.Context, imageID string, w io.Writer) error
	MarkProcessed(ctx context.Context, imageID, newName string) error
}

type Opener interface {
	Open(ctx context.Context, provider, credentials string) (Scanner, error)
}

type opener struct {
	httpTimeout time.Duration
}

func NewOpener(httpTimeout time.Duration) Opener {
	return &opener{httpTimeout: httpTimeout}
}

func (o *opener) Open(ctx context.Context, provider, credentials string) (Scanner, error) {
	blob, err := DecodeCredentials(credentials)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: o.httpTimeout}
	switch provider {
	case "", models.StorageDrive:
		return newDriveScanner(ctx, blob, httpClient)
	case models.StorageR2:
		return newR2Scanner(ctx, blob, httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// DecodeCredentials decodes a base64 credential blob, tolerating missing
// '=' padding and surrounding whitespace.
func DecodeCredentials(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, fmt.Errorf("%w: credentials are empty", ErrRemoteAuth)
	}
	if rem := len(blob) % 4; rem != 0 {
		blob += strings.Repeat("=", 4-rem)
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding credentials: %v", ErrRemoteAuth, err)
	}
	return data, nil
}

func IsProcessed(name string) bool {
	return strings.Contains(name, ProcessedMarker)
}

// ProcessedName inserts ProcessedMarker before the extension:
// "bird1.jpg" becomes "bird1_enviada.jpg".
func ProcessedName(name string) string {
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + ProcessedMarker + ext
}

func filterUnprocessed(images []RemoteImage) []RemoteImage {
	out := images[:0]
	for _, img := range images {
		if !IsProcessed(img.Name) {
			out = append(out, img)
		}
	}
	return out
}
