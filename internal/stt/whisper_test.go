package stt

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	var gotFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("read form file: %v", err)
		}
		defer file.Close()
		gotFile, err = io.ReadAll(file)
		if err != nil {
			t.Fatalf("read upload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":" bring me water "}`)
	}))
	defer server.Close()

	c := NewClient("test-key", "whisper-1", 16000)
	c.BaseURL = server.URL

	pcm := make([]byte, 640)
	text, err := c.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "bring me water" {
		t.Fatalf("text=%q, want %q", text, "bring me water")
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization=%q, want bearer key", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("model=%q, want whisper-1", gotModel)
	}
	if !bytes.Equal(gotFile[0:4], []byte("RIFF")) {
		t.Fatal("upload is not a WAV container")
	}
	if !bytes.Equal(gotFile[44:], pcm) {
		t.Fatal("upload payload does not match the turn audio")
	}
}

func TestTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient("test-key", "", 16000)
	c.BaseURL = server.URL

	if _, err := c.Transcribe(context.Background(), make([]byte, 32)); err == nil {
		t.Fatal("Transcribe error=nil on 429, want non-nil")
	}
}

func TestTranscribeRejectsEmptyInput(t *testing.T) {
	c := NewClient("test-key", "", 16000)
	if _, err := c.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("Transcribe error=nil on empty audio, want non-nil")
	}

	c = NewClient("", "", 16000)
	if _, err := c.Transcribe(context.Background(), make([]byte, 32)); err == nil {
		t.Fatal("Transcribe error=nil with empty key, want non-nil")
	}
}
