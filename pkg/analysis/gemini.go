package analysis

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/draftgo-dev/draftgo/internal/observability"
)

const (
	geminiDefaultModel  = "gemini-2.0-flash"
	geminiClientTimeout = 30 * time.Second
)

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Analyzer, error) {
		apiKey := ""
		if key, ok := config["api_key"].(string); ok {
			apiKey = key
		}
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}

		model := geminiDefaultModel
		if m, ok := config["model"].(string); ok && m != "" {
			model = m
		}

		return NewGeminiAnalyzer(apiKey, model)
	})
}

// GeminiAnalyzer extracts receipt fields with a Gemini vision model
// through the Google Gen AI SDK.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiAnalyzer creates a Gemini-backed analyzer.
func NewGeminiAnalyzer(apiKey, model string) (*GeminiAnalyzer, error) {
	if model == "" {
		model = geminiDefaultModel
	}

	// Bound client creation so a network stall cannot hang startup.
	ctx, cancel := context.WithTimeout(context.Background(), geminiClientTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAnalyzer{
		client: client,
		model:  model,
	}, nil
}

// Name returns the backend name.
func (a *GeminiAnalyzer) Name() string {
	return "gemini"
}

// Analyze extracts structured fields from the request's images.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}

	ctx, span := observability.StartSpan(ctx, "analysis.gemini")
	defer span.End()
	span.SetAttributes(
		observability.Attr("model", a.model),
		observability.Attr("images", len(req.Images)),
	)

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, &genai.Part{Text: hintText(req.Hints)})
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: mime,
				Data:     img.Data,
			},
		})
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: extractionPrompt}},
		},
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: parts,
	}}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}

	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			content += part.Text
		}
	}
	if content == "" {
		return nil, ErrEmptyResponse
	}

	result, err := parseExtraction(content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}
