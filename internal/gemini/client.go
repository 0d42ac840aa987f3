package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator is the part of the genai Models service the client calls.
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps a Gemini model for expense parsing and rule generation.
type Client struct {
	gen   Generator
	model string
}

// NewClient creates a genai-backed Client. Credentials come from the
// environment (GOOGLE_API_KEY or Vertex AI application default credentials).
func NewClient(ctx context.Context, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewClient: create genai client: %w", err)
	}
	return NewClientWithGenerator(client.Models, model), nil
}

// NewClientWithGenerator creates a Client over an existing generator.
func NewClientWithGenerator(gen Generator, model string) *Client {
	if model == "" {
		model = DefaultModelName
	}
	return &Client{gen: gen, model: model}
}

// Model returns the model name used for requests.
func (c *Client) Model() string {
	return c.model
}

// Usage is the token accounting of one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (c *Client) generate(ctx context.Context, prompt, input string, temperature float32) (string, Usage, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{Text: input},
			},
		},
	}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(temperature)}

	resp, err := c.gen.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate content: %w", err)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", usage, fmt.Errorf("empty response from model")
	}
	return rawText, usage, nil
}
