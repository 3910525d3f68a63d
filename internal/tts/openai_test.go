package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	var gotAuth string
	var gotReq speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write(pcm)
	}))
	defer server.Close()

	c := NewClient("test-key", "", "")
	c.BaseURL = server.URL

	got, err := c.Synthesize(context.Background(), "dinner is ready")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("audio=%v, want %v", got, pcm)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization=%q, want bearer key", gotAuth)
	}
	if gotReq.Input != "dinner is ready" {
		t.Fatalf("input=%q, want the text", gotReq.Input)
	}
	if gotReq.Model != "gpt-4o-mini-tts" || gotReq.Voice != "alloy" {
		t.Fatalf("model=%q voice=%q, want defaults", gotReq.Model, gotReq.Voice)
	}
	if gotReq.ResponseFormat != "pcm" {
		t.Fatalf("response_format=%q, want pcm", gotReq.ResponseFormat)
	}
}

func TestSynthesizeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient("test-key", "", "")
	c.BaseURL = server.URL

	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("Synthesize error=nil on 400, want non-nil")
	}
}

func TestSynthesizeRejectsEmptyInput(t *testing.T) {
	c := NewClient("test-key", "", "")
	if _, err := c.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("Synthesize error=nil on blank text, want non-nil")
	}

	c = NewClient("", "", "")
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("Synthesize error=nil with empty key, want non-nil")
	}
}
