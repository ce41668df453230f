package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/h2non/filetype"
)

// r2Scanner treats the folder reference as a key prefix. Only direct
// children of the prefix are listed.
type r2Scanner struct {
	client *s3.Client
	bucket string
}

var _ Scanner = (*r2Scanner)(nil)

func newR2Scanner(ctx context.Context, credentialsJSON []byte, httpClient *http.Client) (*r2Scanner, error) {
	var creds R2Config
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return nil, fmt.Errorf("%w: parsing r2 credentials: %v", ErrRemoteAuth, err)
	}
	if creds.AccessKey == "" || creds.SecretKey == "" || creds.Bucket == "" {
		return nil, fmt.Errorf("%w: r2 credentials need access_key, secret_key and bucket", ErrRemoteAuth)
	}

	client, err := NewR2Client(ctx, creds, httpClient)
	if err != nil {
		return nil, err
	}
	return &r2Scanner{client: client, bucket: creds.Bucket}, nil
}

// ResolveFolder checks that the bucket answers for the prefix. Prefixes are
// not objects, so an empty one is an empty folder like an empty Drive folder.
func (r *r2Scanner) ResolveFolder(ctx context.Context, folderRef string) (string, error) {
	_, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(prefixOf(folderRef)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", classifyR2Error(err, folderRef)
	}
	return strings.Trim(folderRef, "/"), nil
}

func (r *r2Scanner) ListUnprocessed(ctx context.Context, folderRef string) ([]RemoteImage, error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(prefixOf(folderRef)),
		Delimiter: aws.String("/"),
	})

	var images []RemoteImage
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyR2Error(err, folderRef)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			mimeType, ok := imageMimeType(key)
			if !ok {
				continue
			}
			images = append(images, RemoteImage{ID: key, Name: path.Base(key), MimeType: mimeType})
		}
	}

	return filterUnprocessed(images), nil
}

func (r *r2Scanner) Download(ctx context.Context, imageID string, w io.Writer) error {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(imageID),
	})
	if err != nil {
		return classifyR2Error(err, imageID)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", imageID, err)
	}
	return nil
}

// MarkProcessed renames by copy then delete; S3 has no rename.
func (r *r2Scanner) MarkProcessed(ctx context.Context, imageID, newName string) error {
	newKey := newName
	if dir := path.Dir(imageID); dir != "." {
		newKey = dir + "/" + newName
	}

	_, err := r.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(r.bucket),
		CopySource: aws.String(copySource(r.bucket, imageID)),
		Key:        aws.String(newKey),
	})
	if err != nil {
		return &RenameError{ImageID: imageID, NewName: newName, Err: err}
	}

	_, err = r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(imageID),
	})
	if err != nil {
		return &RenameError{ImageID: imageID, NewName: newName, Err: fmt.Errorf("copied but not deleted: %w", err)}
	}
	return nil
}

func prefixOf(folderRef string) string {
	prefix := strings.Trim(folderRef, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// imageMimeType infers an image content type from the key's extension.
func imageMimeType(key string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if ext == "" {
		return "", false
	}
	if kind := filetype.GetType(ext); kind != filetype.Unknown {
		return kind.MIME.Value, kind.MIME.Type == "image"
	}
	if t := mime.TypeByExtension("." + ext); strings.HasPrefix(t, "image/") {
		return t, true
	}
	return "", false
}

func classifyR2Error(err error, ref string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrFolderNotFound, ref)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Unauthorized":
			return fmt.Errorf("%w: %s", ErrRemoteAuth, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("r2 request for %s: %w", ref, err)
}
