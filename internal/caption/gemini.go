package caption

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

type GeminiProvider struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(model string, httpClient *http.Client) *GeminiProvider {
	return &GeminiProvider{model: model, httpClient: httpClient}
}

// WithBaseURL points the provider at a different Gemini API host.
func (p *GeminiProvider) WithBaseURL(baseURL string) *GeminiProvider {
	p.baseURL = baseURL
	return p
}

func (p *GeminiProvider) Generate(ctx context.Context, apiKey, prompt string, image []byte, mimeType string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return resp.Text(), nil
}
