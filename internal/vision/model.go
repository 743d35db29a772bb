// internal/vision/model.go
package vision

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Prompt asks for nothing but a JSON array of ingredient objects.
const Prompt = `Identify the ingredients and approximate weight (grams) of each item in this meal image.

Return ONLY a JSON array, like:
[
  {"ingredient": "rice", "grams": 150},
  {"ingredient": "chicken", "grams": 80}
]

NO explanation.
NO markdown.
NO text outside JSON.`

// Model is the narrow capability the recognizer needs from a vision
// service: one prompt plus one JPEG in, raw response text out.
type Model interface {
	Generate(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, prompt string, jpeg []byte) (string, error)

func (f ModelFunc) Generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	return f(ctx, prompt, jpeg)
}

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModel calls Gemini through the Google Gen AI SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini client for apiKey.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(jpeg, "image/jpeg"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content generated")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
