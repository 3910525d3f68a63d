// Package tts turns announcement text into PCM16 audio via the hosted speech
// API. The realtime engine voices conversation turns itself; this path serves
// operator-initiated speech.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the speech synthesis endpoint.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
	Voice      string
}

// NewClient creates a synthesis client with sane defaults.
func NewClient(apiKey, model, voice string) *Client {
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	if voice == "" {
		voice = "alloy"
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		Voice:      voice,
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns raw PCM16 audio for the given text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: empty text")
	}
	if c.APIKey == "" {
		return nil, errors.New("tts: api key is empty")
	}

	payload, err := json.Marshal(speechRequest{
		Model:          c.Model,
		Input:          text,
		Voice:          c.Voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tts: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
