// Package caption turns an image into an Instagram caption using a
// generative model. Describe never leaves the caller without text.
package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/autopost/internal/models"
)

const DefaultPrompt = "Describe the image I am sending in a single flowing text suitable as an Instagram caption. " +
	"Identify the bird species and give details about its appearance, habitat and range, in a natural, " +
	"engaging and lively tone. Include fitting emojis and hashtags that celebrate nature and bird " +
	"photography, with a focus on the photograph. Reply only with the requested text, without any " +
	"introduction or extra comments."

const placeholderPrefix = "Caption unavailable: "

var ErrEmptyResponse = errors.New("model returned an empty caption")

// ProviderError reports that the caption is a placeholder because the
// provider failed.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("caption provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type Provider interface {
	Generate(ctx context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error)
}

type Generator struct {
	providers map[string]Provider
	timeout   time.Duration
	logger    *slog.Logger
}

func NewGenerator(timeout time.Duration, providers map[string]Provider) *Generator {
	return &Generator{
		providers: providers,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

// Describe returns a caption for image. On any provider failure the text is
// a placeholder and the error is a *ProviderError; there is no retry.
func (g *Generator) Describe(ctx context.Context, provider string, image []byte, apiKey, prompt string) (string, error) {
	if provider == "" {
		provider = models.CaptionGemini
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	p, ok := g.providers[provider]
	if !ok {
		return g.degrade(provider, fmt.Errorf("provider %q is not configured", provider))
	}
	if strings.TrimSpace(apiKey) == "" {
		return g.degrade(provider, errors.New("missing API key"))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := p.Generate(ctx, apiKey, prompt, image, DetectMIME(image))
	if err != nil {
		return g.degrade(provider, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return g.degrade(provider, ErrEmptyResponse)
	}
	return text, nil
}

func (g *Generator) degrade(provider string, err error) (string, error) {
	g.logger.Warn("caption generation failed, using placeholder", "provider", provider, "error", err)
	return Placeholder(err), &ProviderError{Provider: provider, Err: err}
}

func Placeholder(reason error) string {
	return placeholderPrefix + reason.Error()
}

// DetectMIME sniffs the image type, defaulting to image/jpeg.
func DetectMIME(image []byte) string {
	kind, err := filetype.Match(image)
	if err != nil || kind == filetype.Unknown || kind.MIME.Type != "image" {
		return "image/jpeg"
	}
	return kind.MIME.Value
}
