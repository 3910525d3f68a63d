// Package stt transcribes recorded turn audio over the hosted transcription
// API. It is the fallback path when the engine's own transcription is off.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/carebot-ai/voice-edge/pkg/audio"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the transcription endpoint with one WAV upload per turn.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
	// SampleRate describes the PCM16 audio handed to Transcribe.
	SampleRate int
}

// NewClient creates a transcription client with sane defaults.
func NewClient(apiKey, model string, sampleRate int) *Client {
	if model == "" {
		model = "whisper-1"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		SampleRate: sampleRate,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one turn of PCM16 audio and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("stt: empty audio")
	}
	if c.APIKey == "" {
		return "", errors.New("stt: api key is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("model", c.Model); err != nil {
		return "", err
	}
	fileWriter, err := writer.CreateFormFile("file", "turn.wav")
	if err != nil {
		return "", err
	}
	if _, err := fileWriter.Write(audio.EncodeWAV(pcm, c.SampleRate, 1)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("stt: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}
