// Package summarize generates the optional narrative brief: a short
// LLM-written overview of what the last 30 days produced on a topic,
// fed by the rendered context snippet. Everything here is best-effort;
// callers treat failures as a skipped brief, never a failed run.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-1.5-flash-latest"

// Client defines the LLM operation the summarizer needs.
type Client interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiClient implements Client on top of the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGeminiClient creates a Gemini-backed client. An empty modelName
// falls back to DefaultModel.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Lower temperature for more consistent briefs
	model.SetTemperature(0.3)

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
	}, nil
}

// ModelName returns the model this client generates with.
func (c *GeminiClient) ModelName() string {
	return c.modelName
}

// Close releases the underlying API client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// GenerateText sends a single prompt and returns the model's text reply.
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format from model")
	}

	return string(text), nil
}

// Options configures brief generation.
type Options struct {
	MaxWords   int // target length the prompt asks for
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxWords:   150,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

// Summarizer turns a context snippet into a narrative brief.
type Summarizer struct {
	client  Client
	options Options
}

// NewSummarizer creates a summarizer with the given client.
func NewSummarizer(client Client, options Options) *Summarizer {
	return &Summarizer{
		client:  client,
		options: options,
	}
}

// NewSummarizerWithDefaults creates a summarizer with default options.
func NewSummarizerWithDefaults(client Client) *Summarizer {
	return NewSummarizer(client, DefaultOptions())
}

// Brief generates a short narrative overview of the listed results.
// snippet is the rendered context snippet for the run.
func (s *Summarizer) Brief(ctx context.Context, topic, snippet string) (string, error) {
	if strings.TrimSpace(snippet) == "" {
		return "", fmt.Errorf("context snippet is empty")
	}

	prompt := buildBriefPrompt(topic, snippet, s.options.MaxWords)

	var response string
	var err error
	for attempt := 0; attempt <= s.options.MaxRetries; attempt++ {
		response, err = s.client.GenerateText(ctx, prompt)
		if err == nil && strings.TrimSpace(response) != "" {
			return strings.TrimSpace(response), nil
		}
		if err == nil {
			err = fmt.Errorf("model returned an empty brief")
		}

		if attempt < s.options.MaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.options.RetryDelay * time.Duration(attempt+1)):
			}
		}
	}

	return "", fmt.Errorf("failed to generate brief after %d attempts: %w", s.options.MaxRetries+1, err)
}

// buildBriefPrompt frames the snippet for the model. The snippet already
// carries titles ranked by score, so the prompt only has to ask for
// synthesis, not selection.
func buildBriefPrompt(topic, snippet string, maxWords int) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are summarizing the last 30 days of scientific output on %q for a researcher who follows the field.\n\n", topic))
	prompt.WriteString(fmt.Sprintf("Write a single narrative paragraph of at most %d words covering the most notable findings and any visible trends. ", maxWords))
	prompt.WriteString("Mention concrete results, not source names. Write only the paragraph, no heading and no meta-commentary.\n\n")
	prompt.WriteString("Ranked results:\n\n")
	prompt.WriteString(snippet)

	return prompt.String()
}
