package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shorts-pipeline/config"
)

// TextGenerator turns a prompt into text. Implementations may fail; callers
// wrap them with WithRetry.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to TextGenerator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements TextGenerator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const systemPrompt = `You are a professional YouTube Shorts scriptwriter for a faceless channel.
You write ONLY the words that will be spoken aloud.
Never introduce the script, never describe the video, never use headings, markdown, emojis or timestamps.
Short punchy sentences. Conversational. The first line must stop the scroll.`

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient talks to Groq's OpenAI compatible chat completions API.
type GroqClient struct {
	apiKey      string
	model       string
	temperature float64
	endpoint    string
	httpClient  *http.Client
}

// NewGroqClient creates a Groq client. timeout bounds each request.
func NewGroqClient(apiKey, model string, temperature float64, timeout time.Duration) *GroqClient {
	return &GroqClient{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		endpoint:    groqEndpoint,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends prompt as the user message.
func (g *GroqClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(groqRequest{
		Model: g.model,
		Messages: []groqMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var groqResp groqResponse
	if err := json.Unmarshal(respBytes, &groqResp); err != nil {
		return "", fmt.Errorf("parse groq response (status %d): %w", resp.StatusCode, err)
	}
	if groqResp.Error != nil {
		return "", fmt.Errorf("groq error: %s", groqResp.Error.Message)
	}
	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}

	content := strings.TrimSpace(groqResp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("groq returned empty content")
	}
	return content, nil
}

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates an Ollama client for baseURL (e.g. http://localhost:11434).
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate runs a non-streaming completion.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.model, System: systemPrompt, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	var out ollamaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("parse ollama response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("ollama returned empty response")
	}
	return strings.TrimSpace(out.Response), nil
}

// FallbackGenerator tries each generator in order and returns the first
// success.
type FallbackGenerator []TextGenerator

// Generate implements TextGenerator.
func (f FallbackGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for _, g := range f {
		out, err := g.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no text generator configured")
	}
	return "", errors.Join(errs...)
}

type retrying struct {
	gen      TextGenerator
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// WithRetry wraps gen with a bounded retry: attempts is clamped to 1..3 and
// the wait grows linearly with backoff.
func WithRetry(gen TextGenerator, attempts int, backoff time.Duration, log *slog.Logger) TextGenerator {
	attempts = max(1, min(attempts, 3))
	return &retrying{gen: gen, attempts: attempts, backoff: backoff, log: log}
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		var out string
		out, err = r.gen.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		if attempt == r.attempts {
			break
		}
		if r.log != nil {
			r.log.Warn("text generation failed, retrying", "attempt", attempt, "error", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return "", fmt.Errorf("text generation failed after %d attempts: %w", r.attempts, err)
}

// NewFromConfig builds the configured generator. With the groq backend a
// local Ollama server is used as a second choice.
func NewFromConfig(cfg *config.Config) (TextGenerator, error) {
	sc := cfg.Script
	ollama := NewOllamaClient(sc.OllamaURL, sc.OllamaModel, sc.RequestTimeout)

	switch sc.Backend {
	case "ollama":
		return ollama, nil
	case "groq":
		if cfg.Secrets.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY not set")
		}
		groq := NewGroqClient(cfg.Secrets.GroqAPIKey, sc.GroqModel, sc.Temperature, sc.RequestTimeout)
		return FallbackGenerator{groq, ollama}, nil
	default:
		return nil, fmt.Errorf("unknown script backend %q", sc.Backend)
	}
}
