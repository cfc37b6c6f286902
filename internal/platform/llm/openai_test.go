package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": ` {"action":"approve"} `}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient("key-1", "gpt-4o-mini", time.Second)
	c.endpoint = srv.URL

	out, err := c.Complete(context.Background(), "system text", "user text", Options{Temperature: 0, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"action":"approve"}` {
		t.Errorf("out = %q", out)
	}
	if gotAuth != "Bearer key-1" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", gotBody["response_format"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}

func TestOpenAICompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient("key-1", "gpt-4o-mini", time.Second)
	c.endpoint = srv.URL

	_, err := c.Complete(context.Background(), "s", "u", Options{})
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestOpenAINoCredential(t *testing.T) {
	c := NewOpenAIClient("", "gpt-4o-mini", time.Second)
	if _, err := c.Complete(context.Background(), "s", "u", Options{}); err != ErrNoCredential {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}
