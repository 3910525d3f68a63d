package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client issues one-shot agent requests over the chat completions API.
type Client struct {
	HTTPClient   *http.Client
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// NewClient creates an agent client with the default persona prompt.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o"
	}
	return &Client{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		BaseURL:      defaultBaseURL,
		APIKey:       apiKey,
		Model:        model,
		SystemPrompt: DefaultPersona().SystemPrompt,
	}
}

// Run sends one user turn to the agent and returns its raw three-field reply.
func (c *Client) Run(ctx context.Context, input string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("agent api key missing")
	}
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/chat/completions"

	messages := []chatMessage{
		{Role: "system", Content: c.SystemPrompt},
		{Role: "user", Content: "Provide a response to this input: " + input},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("agent error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("agent: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// RunTurn runs one turn and decodes the reply.
func (c *Client) RunTurn(ctx context.Context, input string) (Result, error) {
	raw, err := c.Run(ctx, input)
	if err != nil {
		return Result{}, err
	}
	return Parse(raw), nil
}
