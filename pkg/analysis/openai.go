package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/draftgo-dev/draftgo/internal/observability"
)

const (
	openaiDefaultModel = "gpt-4o-mini"
)

func init() {
	RegisterFactory("openai", func(config map[string]any) (Analyzer, error) {
		apiKey := ""
		if key, ok := config["api_key"].(string); ok {
			apiKey = key
		}
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		model := openaiDefaultModel
		if m, ok := config["model"].(string); ok && m != "" {
			model = m
		}

		return NewOpenAIAnalyzer(openai.NewClient(apiKey), model), nil
	})
}

// OpenAIClient is the slice of the OpenAI API this analyzer needs (testable).
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAnalyzer extracts receipt fields with an OpenAI vision model.
type OpenAIAnalyzer struct {
	client OpenAIClient
	model  string
}

// NewOpenAIAnalyzer creates an analyzer backed by the given client.
func NewOpenAIAnalyzer(client OpenAIClient, model string) *OpenAIAnalyzer {
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAIAnalyzer{
		client: client,
		model:  model,
	}
}

// Name returns the backend name.
func (a *OpenAIAnalyzer) Name() string {
	return "openai"
}

const extractionPrompt = `You are a receipt and invoice extraction service.
Given one or more images of a single purchase document, respond with a JSON
object containing exactly these keys:
  "vendor": merchant name as printed (string)
  "total_minor": grand total in minor currency units, e.g. cents (integer)
  "currency": ISO 4217 code (string)
  "date": purchase date as YYYY-MM-DD (string)
  "category": one of the hinted categories, or your best guess (string)
  "notes": any payment method or line-item detail worth keeping (string)
  "confidence": your extraction confidence from 0 to 1 (number)
Respond with the JSON object only.`

// Analyze extracts structured fields from the request's images.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}

	ctx, span := observability.StartSpan(ctx, "analysis.openai")
	defer span.End()
	span.SetAttributes(
		observability.Attr("model", a.model),
		observability.Attr("images", len(req.Images)),
	)

	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: hintText(req.Hints),
	})
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: dataURL(img),
			},
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}

	result, err := parseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// extractionWire is the model's JSON output contract.
type extractionWire struct {
	Vendor     string  `json:"vendor"`
	TotalMinor int64   `json:"total_minor"`
	Currency   string  `json:"currency"`
	Date       string  `json:"date"`
	Category   string  `json:"category"`
	Notes      string  `json:"notes"`
	Confidence float64 `json:"confidence"`
}

// parseExtraction decodes the model output into a Result.
func parseExtraction(content string) (*Result, error) {
	var wire extractionWire
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}

	result := &Result{
		Vendor:     wire.Vendor,
		Total:      wire.TotalMinor,
		Currency:   strings.ToUpper(wire.Currency),
		Category:   wire.Category,
		Notes:      wire.Notes,
		Confidence: wire.Confidence,
	}

	if wire.Date != "" {
		purchasedAt, err := time.Parse("2006-01-02", wire.Date)
		if err == nil {
			result.PurchasedAt = purchasedAt
		}
		// An unparseable date is not fatal; the user reviews every field.
	}

	return result, nil
}

// hintText renders extraction hints as a user message.
func hintText(hints map[string]string) string {
	if len(hints) == 0 {
		return "Extract the document."
	}

	var b strings.Builder
	b.WriteString("Extract the document. Hints:\n")
	for k, v := range hints {
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}
	return b.String()
}

// dataURL encodes an image as a base64 data URL.
func dataURL(img Image) string {
	mime := img.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
