package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

type driveScanner struct {
	svc *drive.Service
}

var _ Scanner = (*driveScanner)(nil)

// newDriveScanner authenticates with a service-account JSON key.
func newDriveScanner(ctx context.Context, credentialsJSON []byte, httpClient *http.Client) (*driveScanner, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteAuth, err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = httpClient.Timeout

	return newDriveScannerWithOptions(ctx, option.WithHTTPClient(client))
}

func newDriveScannerWithOptions(ctx context.Context, opts ...option.ClientOption) (*driveScanner, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &driveScanner{svc: svc}, nil
}

func (d *driveScanner) ResolveFolder(ctx context.Context, folderRef string) (string, error) {
	folder, err := d.svc.Files.Get(folderRef).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError(err, folderRef)
	}
	if folder.MimeType != driveFolderMimeType {
		return "", fmt.Errorf("%w: %s is not a folder", ErrFolderNotFound, folderRef)
	}
	return folder.Name, nil
}

func (d *driveScanner) ListUnprocessed(ctx context.Context, folderRef string) ([]RemoteImage, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", escapeQuery(folderRef))

	var images []RemoteImage
	err := d.svc.Files.List().
		Q(q).
		Fields("nextPageToken", "files(id, name, mimeType)").
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				images = append(images, RemoteImage{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
			}
			return nil
		})
	if err != nil {
		return nil, classifyDriveError(err, folderRef)
	}

	return filterUnprocessed(images), nil
}

func (d *driveScanner) Download(ctx context.Context, imageID string, w io.Writer) error {
	resp, err := d.svc.Files.Get(imageID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return classifyDriveError(err, imageID)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", imageID, err)
	}
	return nil
}

func (d *driveScanner) MarkProcessed(ctx context.Context, imageID, newName string) error {
	_, err := d.svc.Files.Update(imageID, &drive.File{Name: newName}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		slog.Info(err.Error())
		return &RenameError{ImageID: imageID, NewName: newName, Err: err}
	}
	return nil
}

func classifyDriveError(err error, ref string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrFolderNotFound, ref)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrRemoteAuth, apiErr.Message)
		}
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", ErrRemoteAuth, retrieveErr)
	}
	return fmt.Errorf("drive request for %s: %w", ref, err)
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
