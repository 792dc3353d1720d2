// Package models contains shared data models used across the service.
package models

import "context"

// VisionProvider is the interface every vision-capable model integration implements.
// Never call specific AI providers directly; always inject this interface.
type VisionProvider interface {
	// Complete sends one multimodal prompt and returns the generated text.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Name returns the provider identifier (e.g., "ollama", "anthropic").
	Name() string
}

// Image is one inline image attached to a completion request.
type Image struct {
	MimeType string
	Data     []byte
}

// CompletionRequest is a single user turn: instruction text followed by ordered images.
type CompletionRequest struct {
	System    string
	Text      string
	Images    []Image
	MaxTokens int
}

// Completion is the provider's answer.
type Completion struct {
	Text       string
	TokensUsed int
	Provider   string
	Model      string
	// Fallback is set when the answer came from a secondary provider.
	Fallback bool
}
