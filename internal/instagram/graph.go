package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/transfer"
)

const (
	defaultGraphURL = "https://graph.instagram.com/v21.0"

	graphInvalidTokenCode = 190
)

var ErrStagingUnavailable = errors.New("graph publishing needs a public staging bucket")

// Stager makes a photo reachable by URL so the Graph API can fetch it.
type Stager interface {
	Stage(ctx context.Context, photo Photo) (publicURL string, cleanup func(context.Context), err error)
}

// GraphClient publishes through the Instagram Graph API. The account
// password holds a long-lived access token.
type GraphClient struct {
	baseURL      string
	httpClient   *http.Client
	stager       Stager
	pollInterval time.Duration
	pollAttempts int
	now          func() time.Time
}

var _ Client = (*GraphClient)(nil)

func NewGraphClient(httpClient *http.Client, stager Stager) *GraphClient {
	return &GraphClient{
		baseURL:      defaultGraphURL,
		httpClient:   httpClient,
		stager:       stager,
		pollInterval: 2 * time.Second,
		pollAttempts: 10,
		now:          time.Now,
	}
}

func (g *GraphClient) WithBaseURL(baseURL string) *GraphClient {
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

// Login exchanges nothing: it checks the token and records the user id.
func (g *GraphClient) Login(ctx context.Context, username, accessToken string, _ *Session) (*Session, error) {
	info, err := g.me(ctx, accessToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.kind == ErrLoginRequired {
			apiErr.kind = ErrBadCredentials
		}
		return nil, fmt.Errorf("login as %s: %w", username, err)
	}

	userID := info.UserID
	if userID == "" {
		userID = info.ID
	}
	now := g.now()
	return &Session{
		Username:    username,
		Backend:     models.PlatformGraph,
		UserID:      userID,
		AccessToken: accessToken,
		CreatedAt:   now,
		ValidatedAt: now,
	}, nil
}

func (g *GraphClient) Validate(ctx context.Context, s *Session) error {
	if s.AccessToken == "" {
		return fmt.Errorf("validating session of %s: %w", s.Username, ErrLoginRequired)
	}
	if _, err := g.me(ctx, s.AccessToken); err != nil {
		return fmt.Errorf("validating session of %s: %w", s.Username, err)
	}
	s.ValidatedAt = g.now()
	return nil
}

func (g *GraphClient) PostPhoto(ctx context.Context, s *Session, photo Photo, caption string) (string, error) {
	if g.stager == nil {
		return "", ErrStagingUnavailable
	}

	imageURL, cleanup, err := g.stager.Stage(ctx, photo)
	if err != nil {
		return "", fmt.Errorf("staging %s: %w", photo.Name, err)
	}
	defer cleanup(context.WithoutCancel(ctx))

	var container transfer.InstagramMediaResponse
	err = g.postJSON(ctx, fmt.Sprintf("%s/%s/media", g.baseURL, s.UserID), map[string]interface{}{
		"image_url":    imageURL,
		"caption":      caption,
		"access_token": s.AccessToken,
	}, &container)
	if err != nil {
		return "", fmt.Errorf("creating media container: %w", err)
	}
	if container.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}

	if err := g.waitForContainer(ctx, container.ID, s.AccessToken); err != nil {
		return "", err
	}

	var published transfer.InstagramMediaResponse
	err = g.postJSON(ctx, fmt.Sprintf("%s/%s/media_publish", g.baseURL, s.UserID), map[string]interface{}{
		"creation_id":  container.ID,
		"access_token": s.AccessToken,
	}, &published)
	if err != nil {
		return "", fmt.Errorf("publishing media container %s: %w", container.ID, err)
	}
	if published.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}
	return published.ID, nil
}

func (g *GraphClient) waitForContainer(ctx context.Context, containerID, accessToken string) error {
	endpoint := fmt.Sprintf("%s/%s?%s", g.baseURL, containerID, url.Values{
		"fields":       {"status_code"},
		"access_token": {accessToken},
	}.Encode())

	for attempt := 0; attempt < g.pollAttempts; attempt++ {
		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := g.getJSON(ctx, endpoint, &status); err != nil {
			return fmt.Errorf("checking media container %s: %w", containerID, err)
		}
		switch status.StatusCode {
		case "", "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("media container %s ended in status %s", containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.pollInterval):
		}
	}
	return fmt.Errorf("media container %s not ready after %d checks", containerID, g.pollAttempts)
}

func (g *GraphClient) me(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	endpoint := fmt.Sprintf("%s/me?%s", g.baseURL, url.Values{
		"fields":       {"user_id,username"},
		"access_token": {accessToken},
	}.Encode())

	var info transfer.InstagramUserInfo
	if err := g.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (g *GraphClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return g.do(req, out)
}

func (g *GraphClient) postJSON(ctx context.Context, endpoint string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *GraphClient) do(req *http.Request, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return graphError(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

func graphError(statusCode int, body []byte) error {
	var errResp transfer.InstagramErrorResponse
	apiErr := &APIError{StatusCode: statusCode}
	if json.Unmarshal(body, &errResp) == nil {
		apiErr.Code = errResp.Error.Code
		apiErr.Type = errResp.Error.Type
		apiErr.Message = errResp.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	if apiErr.Code == graphInvalidTokenCode || statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		apiErr.kind = ErrLoginRequired
	}
	return apiErr
}
