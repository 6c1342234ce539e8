package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/completion"
)

const apiURL = "https://api.openai.com/v1/chat/completions"

const systemInstruction = "You are a startup due-diligence analyst. Respond with a single JSON object only."

// Client implements completion.Client using OpenAI Chat Completions.
type Client struct {
	apiKey       string
	simpleModel  string
	complexModel string
	httpClient   *http.Client
}

// NewClient constructs a new OpenAI client. simpleModel serves agents with
// complexity "simple"; complexModel serves "complex" agents.
func NewClient(apiKey, simpleModel, complexModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(simpleModel) == "" {
		return nil, fmt.Errorf("COMPLETION_MODEL_SIMPLE is required for OpenAI")
	}
	if strings.TrimSpace(complexModel) == "" {
		complexModel = simpleModel
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey:       apiKey,
		simpleModel:  simpleModel,
		complexModel: complexModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one instruction and returns the structured payload. Output
// that is not strict JSON goes through ExtractJSON before the call fails.
func (c *Client) Complete(ctx context.Context, req completion.Request) (completion.Result, error) {
	model := c.simpleModel
	if req.Complexity == "complex" {
		model = c.complexModel
	}

	messages := []chatMessage{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: req.Instruction},
	}

	raw, usage, err := c.completeOnce(ctx, model, req.Temperature, messages)
	if err != nil {
		return completion.Result{}, err
	}
	logUsage(model, usage)

	if !json.Valid(raw) {
		if scraped, ok := ExtractJSON(string(raw)); ok {
			raw = json.RawMessage(scraped)
		} else {
			return completion.Result{}, fmt.Errorf("%w: invalid JSON from OpenAI", completion.ErrProvider)
		}
	}

	return completion.Result{
		Payload:          raw,
		Model:            model,
		PromptTokens:     usagePrompt(usage),
		CompletionTokens: usageCompletion(usage),
		CostUSD:          costUSD(model, usage),
	}, nil
}

func (c *Client) completeOnce(ctx context.Context, model string, temperature float32, messages []chatMessage) (json.RawMessage, *chatUsage, error) {
	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
	}
	reqBody.Temperature = &temperature
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, nil, fmt.Errorf("openai request timeout: %w", context.DeadlineExceeded)
		}
		return nil, nil, fmt.Errorf("%w: %v", completion.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", completion.ErrProvider, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: response parse: %v", completion.ErrProvider, err)
	}
	if parsed.Error != nil {
		return nil, nil, fmt.Errorf("%w: %s (%s)", completion.ErrProvider, parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil, fmt.Errorf("%w: response missing choices", completion.ErrProvider)
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, nil, fmt.Errorf("%w: response empty content", completion.ErrProvider)
	}
	return json.RawMessage(content), parsed.Usage, nil
}

// ExtractJSON pulls the first balanced JSON object out of free text. Models
// occasionally wrap the payload in prose or markdown fences.
func ExtractJSON(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := content[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}

func usagePrompt(u *chatUsage) int {
	if u == nil {
		return 0
	}
	return u.PromptTokens
}

func usageCompletion(u *chatUsage) int {
	if u == nil {
		return 0
	}
	return u.CompletionTokens
}

// Per-million-token USD prices. Unknown models report zero cost rather than
// guessing.
var modelPricing = map[string][2]float64{
	"gpt-4o":      {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-5":       {1.25, 10.00},
	"gpt-5-mini":  {0.25, 2.00},
}

func costUSD(model string, u *chatUsage) float64 {
	if u == nil {
		return 0
	}
	prices, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(u.PromptTokens)/1e6*prices[0] + float64(u.CompletionTokens)/1e6*prices[1]
}

func logUsage(model string, usage *chatUsage) {
	if usage == nil {
		return
	}
	log.Printf("openai usage model=%s prompt_tokens=%d completion_tokens=%d total_tokens=%d",
		model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
}
