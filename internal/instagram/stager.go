package instagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/maheshrc27/autopost/internal/storage"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const stagingPrefix = "staging/"

// R2Stager uploads photos to a public Cloudflare R2 bucket for the duration
// of a Graph API publish.
type R2Stager struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

var _ Stager = (*R2Stager)(nil)

func NewR2Stager(ctx context.Context, cfg storage.R2Config, publicURL string, httpClient *http.Client) (*R2Stager, error) {
	if cfg.Bucket == "" || publicURL == "" {
		return nil, errors.New("r2 staging needs a bucket and a public URL")
	}
	client, err := storage.NewR2Client(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return &R2Stager{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (r *R2Stager) Stage(ctx context.Context, photo Photo) (string, func(context.Context), error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", nil, err
	}

	contentType := photo.MimeType
	ext := path.Ext(photo.Name)
	if kind, err := filetype.Match(photo.Data); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
		ext = "." + kind.Extension
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := stagingPrefix + id + ext

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(photo.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", nil, fmt.Errorf("uploading %s to r2: %w", key, err)
	}

	cleanup := func(ctx context.Context) {
		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			slog.Warn("failed to remove staged photo", "key", key, "error", err)
		}
	}
	return r.publicURL + "/" + key, cleanup, nil
}
