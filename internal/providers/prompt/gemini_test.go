package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestGeminiEnhance(t *testing.T) {
	enhancer, err := NewGeminiEnhancer(GeminiOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if got := r.Header.Get("x-goog-api-key"); got != "dummy" {
				t.Errorf("x-goog-api-key = %q", got)
			}
			var req geminiRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
				t.Fatalf("request parts = %+v", req.Contents)
			}
			if req.Contents[0].Parts[1].InlineData == nil {
				t.Fatal("image part missing")
			}
			return jsonResponse(http.StatusOK, geminiResponse{Candidates: []struct {
				Content geminiContent `json:"content"`
			}{{Content: geminiContent{Parts: []geminiPart{{
				Text: "### STEP 3 - FINAL PROMPT:\nHigh-fidelity edit of the lamp post scene.",
			}}}}}}), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewGeminiEnhancer() error = %v", err)
	}

	got, err := enhancer.Enhance(context.Background(), "remove the lamp post", []byte("img"))
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if got != "High-fidelity edit of the lamp post scene." {
		t.Fatalf("Enhance() = %q", got)
	}
}

func TestGeminiEnhanceTransportError(t *testing.T) {
	enhancer, err := NewGeminiEnhancer(GeminiOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
	})
	if err != nil {
		t.Fatalf("NewGeminiEnhancer() error = %v", err)
	}
	if _, err := enhancer.Enhance(context.Background(), "p", nil); err == nil {
		t.Fatal("Enhance() error = nil, want transport failure")
	}
}

func TestGeminiEnhanceNoFinalPrompt(t *testing.T) {
	enhancer, err := NewGeminiEnhancer(GeminiOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, geminiResponse{Candidates: []struct {
				Content geminiContent `json:"content"`
			}{{Content: geminiContent{Parts: []geminiPart{{Text: "no marker here"}}}}}}), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewGeminiEnhancer() error = %v", err)
	}
	if _, err := enhancer.Enhance(context.Background(), "p", nil); err == nil {
		t.Fatal("Enhance() error = nil, want missing-final-prompt failure")
	}
}

func TestNewGeminiEnhancerRequiresKey(t *testing.T) {
	if _, err := NewGeminiEnhancer(GeminiOptions{}); err == nil {
		t.Fatal("missing api key accepted")
	}
}
