package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/log"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nick-dorsch/projectpilot/embed/prompts"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	geminiMaxRetries   = 3
	geminiInitialDelay = 1 * time.Second
)

const subtasksSchema = `{
	"type": "object",
	"required": ["subtasks"],
	"properties": {
		"subtasks": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`

var (
	promptTemplate = template.Must(template.New("subtasks").Parse(prompts.Subtasks))
	responseSchema = jsonschema.MustCompileString("subtasks.json", subtasksSchema)
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	apiKey       string
	endpoint     string
	model        string
	client       *http.Client
	logger       *log.Logger
	initialDelay time.Duration
}

type GeminiOptions struct {
	APIKey   string
	Endpoint string
	Model    string
	Client   *http.Client
	Logger   *log.Logger
}

func NewGemini(opts GeminiOptions) *Gemini {
	g := &Gemini{
		apiKey:       opts.APIKey,
		endpoint:     strings.TrimRight(opts.Endpoint, "/"),
		model:        opts.Model,
		client:       opts.Client,
		logger:       opts.Logger,
		initialDelay: geminiInitialDelay,
	}
	if g.endpoint == "" {
		g.endpoint = DefaultEndpoint
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.client == nil {
		g.client = &http.Client{}
	}
	if g.logger == nil {
		g.logger = log.New(io.Discard)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Suggest never returns an error; failures come back as a failed Result.
func (g *Gemini) Suggest(ctx context.Context, title, description string) Result {
	items, err := g.generate(ctx, title, description)
	if err != nil {
		g.logger.Error("failed to suggest subtasks", "err", err)
		return failure(err)
	}
	items = normalize(items)
	if len(items) == 0 {
		return failure(ErrNoSuggestions)
	}
	return Result{Subtasks: items}
}

func (g *Gemini) generate(ctx context.Context, title, description string) ([]string, error) {
	var prompt strings.Builder
	if err := promptTemplate.Execute(&prompt, struct{ Title, Description string }{title, description}); err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt.String()}}}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"responseSchema": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"subtasks": map[string]any{
						"type": "ARRAY",
						"items": map[string]any{
							"type":        "STRING",
							"description": "A single, actionable sub-task.",
						},
					},
				},
			},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)

	var lastErr error
	for attempt := 0; attempt < geminiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * g.initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr geminiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				lastErr = fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				g.logger.Warn("retrying suggestion request", "attempt", attempt+1, "status", resp.StatusCode)
				continue
			}
			return nil, lastErr
		}

		return parseResponse(respBody)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseResponse(body []byte) ([]string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoSuggestions
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("model answer is not JSON: %w", err)
	}
	if err := responseSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model answer does not match schema: %w", err)
	}

	var out struct {
		Subtasks []string `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to decode subtasks: %w", err)
	}
	return out.Subtasks, nil
}
