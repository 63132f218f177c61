// Package analysis defines the remote document-analysis boundary.
// An Analyzer extracts structured expense fields from captured receipt
// images. Analyzers know nothing about sessions or credits: reservation
// happens strictly before Analyze is invoked, and confirm/refund strictly
// after its result or error is observed.
package analysis

import (
	"context"
	"errors"
	"time"
)

// Common errors for analyzers.
var (
	// ErrNoImages is returned when a request carries no image payloads.
	ErrNoImages = errors.New("analysis request has no images")
	// ErrEmptyResponse is returned when the remote model produced no usable output.
	ErrEmptyResponse = errors.New("remote analysis returned empty response")
)

// Image is a single captured document page.
type Image struct {
	// Name is an informational label (e.g., original file name).
	Name string `json:"name"`
	// MIME is the content type ("image/jpeg", "image/png", ...).
	MIME string `json:"mime"`
	// Data is the raw image payload.
	Data []byte `json:"data"`
}

// Request carries the images and extraction hints for one analysis call.
type Request struct {
	// Images are the captured pages, in order.
	Images []Image `json:"images"`
	// Hints are optional extraction hints (e.g., "currency": "EUR",
	// "categories": "travel,meals,office").
	Hints map[string]string `json:"hints,omitempty"`
}

// Result is the structured extraction produced by the remote service.
type Result struct {
	// Vendor is the merchant or issuer name.
	Vendor string `json:"vendor"`
	// Total is the grand total in minor currency units (cents).
	Total int64 `json:"total"`
	// Currency is the ISO 4217 code.
	Currency string `json:"currency"`
	// PurchasedAt is the document date.
	PurchasedAt time.Time `json:"purchasedAt"`
	// Category is the suggested expense category.
	Category string `json:"category"`
	// Notes holds any free-form detail the model extracted.
	Notes string `json:"notes,omitempty"`
	// Confidence is the model's self-reported extraction confidence (0-1).
	Confidence float64 `json:"confidence"`
}

// Analyzer performs a single asynchronous remote analysis operation.
// Implementations must respect the context deadline: the caller bounds
// every call with a timeout.
type Analyzer interface {
	// Analyze extracts structured fields from the request's images.
	Analyze(ctx context.Context, req Request) (*Result, error)

	// Name returns the backend name (e.g., "openai", "gemini").
	Name() string
}
