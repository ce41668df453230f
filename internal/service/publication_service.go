package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/autopost/internal/caption"
	"github.com/maheshrc27/autopost/internal/instagram"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/storage"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrConfig          = errors.New("account configuration error")
	ErrRunInProgress   = errors.New("a publication run is already in progress for this account")
	ErrAccountNotFound = errors.New("account not found")
)

// CredentialStore hands out account snapshots with secrets already opened.
type CredentialStore interface {
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

type HistorySink interface {
	Append(ctx context.Context, rec *models.PublicationRecord) error
}

type CaptionGenerator interface {
	Describe(ctx context.Context, provider string, image []byte, apiKey, prompt string) (string, error)
}

type SessionOpener interface {
	Open(platform, username, password string) (*publisher.Publisher, error)
}

type PublicationService interface {
	// Run scans the account folder and publishes every unprocessed image.
	Run(ctx context.Context, accountID int64) *models.RunResult
	// TriggerNow is a manual Run, guarded the same way.
	TriggerNow(ctx context.Context, accountID int64) *models.RunResult
	InFlight(accountID int64) bool
}

type PublicationOptions struct {
	TempDir    string
	RunTimeout time.Duration
}

type publicationService struct {
	accounts CredentialStore
	history  HistorySink
	storage  storage.Opener
	captions CaptionGenerator
	sessions SessionOpener
	opts     PublicationOptions

	mu       sync.Mutex
	inFlight map[int64]string
	// users maps a busy instagram username to the account running it.
	users map[string]int64
}

func NewPublicationService(accounts CredentialStore, history HistorySink, opener storage.Opener, captions CaptionGenerator, sessions SessionOpener, opts PublicationOptions) PublicationService {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	return &publicationService{
		accounts: accounts,
		history:  history,
		storage:  opener,
		captions: captions,
		sessions: sessions,
		opts:     opts,
		inFlight: make(map[int64]string),
		users:    make(map[string]int64),
	}
}

func (s *publicationService) InFlight(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[accountID]
	return ok
}

func (s *publicationService) acquire(accountID int64, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[accountID]; busy {
		return false
	}
	s.inFlight[accountID] = runID
	return true
}

func (s *publicationService) release(accountID int64) {
	s.mu.Lock()
	delete(s.inFlight, accountID)
	s.mu.Unlock()
}

// acquireUser claims the session of username for accountID. It reports the
// account already holding it when the claim fails.
func (s *publicationService) acquireUser(username string, accountID int64) (int64, bool) {
	key := strings.ToLower(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, busy := s.users[key]; busy {
		return holder, false
	}
	s.users[key] = accountID
	return 0, true
}

func (s *publicationService) releaseUser(username string) {
	s.mu.Lock()
	delete(s.users, strings.ToLower(username))
	s.mu.Unlock()
}

func (s *publicationService) TriggerNow(ctx context.Context, accountID int64) *models.RunResult {
	slog.Info("manual publication triggered", "account_id", accountID)
	return s.Run(ctx, accountID)
}

func (s *publicationService) Run(ctx context.Context, accountID int64) (result *models.RunResult) {
	runID, err := gonanoid.New(10)
	if err != nil {
		runID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	result = &models.RunResult{
		RunID:     runID,
		AccountID: accountID,
		Status:    models.RunStatusSuccess,
		Images:    []models.ImageResult{},
		StartedAt: time.Now().UTC(),
	}
	logger := slog.With("account_id", accountID, "run_id", runID)

	if !s.acquire(accountID, runID) {
		logger.Warn("publication run skipped, another run is in flight")
		result.Status = models.RunStatusSkipped
		result.Message = ErrRunInProgress.Error()
		result.Err = ErrRunInProgress
		result.FinishedAt = time.Now().UTC()
		return result
	}
	defer s.release(accountID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("publication run panicked: %v", r)
			logger.Error("recovered from panic", "error", err)
			s.record(ctx, accountID, models.PublicationStatusError, err.Error(), "")
			result.Fail(err)
		}
		result.FinishedAt = time.Now().UTC()
		logger.Info("publication run finished", "status", result.Status, "published", result.Published(), "images", len(result.Images))
	}()

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		err = fmt.Errorf("loading account: %w", err)
		logger.Error("could not load account", "error", err)
		if !errors.Is(err, ErrAccountNotFound) {
			s.record(ctx, accountID, models.PublicationStatusError, err.Error(), "")
		}
		result.Fail(err)
		return result
	}
	if acct == nil {
		result.Fail(ErrAccountNotFound)
		return result
	}

	if holder, ok := s.acquireUser(acct.InstagramUsername, accountID); !ok {
		logger.Warn("publication run skipped, username busy in another account", "holder", holder)
		result.Status = models.RunStatusSkipped
		result.Message = fmt.Sprintf("instagram username %s is being published by account %d", acct.InstagramUsername, holder)
		result.Err = ErrRunInProgress
		return result
	}
	defer s.releaseUser(acct.InstagramUsername)

	folderRef := strings.TrimSpace(acct.FolderID)
	if folderRef == "" {
		logger.Error("no folder configured")
		result.Fail(fmt.Errorf("%w: no folder id configured", ErrConfig))
		return result
	}

	platform := acct.Platform
	if platform == "" {
		platform = models.PlatformMobile
	}
	pub, err := s.sessions.Open(platform, acct.InstagramUsername, acct.InstagramPassword)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfig, err)
		logger.Error("could not open publisher", "error", err)
		s.record(ctx, accountID, models.PublicationStatusError, err.Error(), "")
		result.Fail(err)
		return result
	}

	prompt := acct.CaptionPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = caption.DefaultPrompt
	} else {
		logger.Info("using custom caption prompt")
	}

	images, err := s.scan(ctx, acct, folderRef, logger)
	if err != nil {
		s.record(ctx, accountID, models.PublicationStatusError, err.Error(), "")
		result.Fail(err)
		return result
	}

	if len(images.found) == 0 {
		logger.Info(models.NoNewImagesMessage)
		s.record(ctx, accountID, models.PublicationStatusInfo, models.NoNewImagesMessage, "")
		result.Message = models.NoNewImagesMessage
		return result
	}

	for _, img := range images.found {
		res := s.processImage(ctx, logger, acct, images.scanner, pub, img, prompt)
		result.Images = append(result.Images, res)
	}

	result.Message = fmt.Sprintf("Published %d of %d images", result.Published(), len(result.Images))
	return result
}

type scanResult struct {
	scanner storage.Scanner
	found   []storage.RemoteImage
}

func (s *publicationService) scan(ctx context.Context, acct *models.Account, folderRef string, logger *slog.Logger) (*scanResult, error) {
	scanner, err := s.storage.Open(ctx, acct.StorageProvider, acct.StorageCredentials)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	folderName, err := scanner.ResolveFolder(ctx, folderRef)
	if err != nil {
		return nil, fmt.Errorf("resolving folder %s: %w", folderRef, err)
	}
	logger.Info("folder found", "folder", folderName)

	found, err := scanner.ListUnprocessed(ctx, folderRef)
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", folderRef, err)
	}
	return &scanResult{scanner: scanner, found: found}, nil
}

func (s *publicationService) processImage(ctx context.Context, logger *slog.Logger, acct *models.Account, scanner storage.Scanner, pub *publisher.Publisher, img storage.RemoteImage, prompt string) (res models.ImageResult) {
	res = models.ImageResult{ImageID: img.ID, ImageName: img.Name}
	logger = logger.With("image", img.Name)
	recorded := false

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("processing %s panicked: %v", img.Name, r)
			logger.Error("recovered from panic", "error", err)
			if recorded {
				res.Warning = err.Error()
				return
			}
			res.Status = models.PublicationStatusError
			res.Details = err.Error()
			s.record(ctx, acct.ID, res.Status, res.Details, img.Name)
		}
	}()

	if err := pub.Err(); err != nil {
		res.Status = models.PublicationStatusError
		res.Details = fmt.Sprintf("Could not authenticate with Instagram: %v", err)
		s.record(ctx, acct.ID, res.Status, res.Details, img.Name)
		return res
	}

	logger.Info("processing image")
	data, err := s.download(ctx, acct.ID, scanner, img)
	if err != nil {
		logger.Error("download failed", "error", err)
		res.Status = models.PublicationStatusError
		res.Details = fmt.Sprintf("Error downloading image: %v", err)
		s.record(ctx, acct.ID, res.Status, res.Details, img.Name)
		return res
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = caption.DetectMIME(data)
	}

	text, err := s.captions.Describe(ctx, acct.CaptionProvider, data, acct.CaptionAPIKey, prompt)
	if err != nil {
		logger.Warn("caption generation failed, using placeholder", "error", err)
		res.CaptionDegraded = true
	}
	res.Caption = text

	mediaID, err := pub.Post(ctx, instagram.Photo{Name: img.Name, Data: data, MimeType: mimeType}, text)
	if err != nil {
		logger.Error("instagram post failed", "error", err)
		res.Status = models.PublicationStatusError
		res.Details = postFailureDetails(err)
	} else {
		res.Status = models.PublicationStatusSuccess
		res.MediaID = mediaID
		res.Details = fmt.Sprintf("Published successfully. Media ID: %s", mediaID)
	}
	s.record(ctx, acct.ID, res.Status, res.Details, img.Name)
	recorded = true

	if res.Status != models.PublicationStatusSuccess {
		return res
	}

	newName := storage.ProcessedName(img.Name)
	if err := scanner.MarkProcessed(ctx, img.ID, newName); err != nil {
		var renameErr *storage.RenameError
		if !errors.As(err, &renameErr) {
			renameErr = &storage.RenameError{ImageID: img.ID, NewName: newName, Err: err}
		}
		logger.Warn("could not mark image as processed", "error", renameErr)
		res.RenameErr = renameErr
		res.Warning = renameErr.Error()
	}
	return res
}

func postFailureDetails(err error) string {
	switch {
	case errors.Is(err, instagram.ErrChallengeRequired):
		return "The Instagram account requires manual verification. Log in from the app or a browser and complete the security challenge."
	case errors.Is(err, publisher.ErrAuth):
		return fmt.Sprintf("Could not authenticate with Instagram: %v", err)
	}
	return fmt.Sprintf("Error posting to Instagram: %v", err)
}

// download streams the image into an account and run scoped temp file and
// returns its bytes. The file never outlives the call.
func (s *publicationService) download(ctx context.Context, accountID int64, scanner storage.Scanner, img storage.RemoteImage) ([]byte, error) {
	runID := "run"
	s.mu.Lock()
	if id, ok := s.inFlight[accountID]; ok {
		runID = id
	}
	s.mu.Unlock()

	pattern := fmt.Sprintf("acct%d-%s-*%s", accountID, runID, path.Ext(img.Name))
	f, err := os.CreateTemp(s.opts.TempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := scanner.Download(ctx, img.ID, f); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding temp file: %w", err)
	}
	return io.ReadAll(f)
}

// record appends a history entry even when the run context is already done.
func (s *publicationService) record(ctx context.Context, accountID int64, status, details, imageName string) {
	rec := &models.PublicationRecord{
		AccountID: accountID,
		Status:    status,
		Details:   details,
	}
	if imageName != "" {
		rec.ImageName = &imageName
	}
	if err := s.history.Append(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("failed to record publication history", "account_id", accountID, "error", err)
	}
}
