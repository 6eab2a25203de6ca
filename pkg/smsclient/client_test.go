package smsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendPostsPhoneAndMessage(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	if err := c.Send(context.Background(), "250788123456", "hello"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got.PhoneNumber != "250788123456" || got.Message != "hello" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected Authorization header %q", auth)
	}
}

func TestSendReturnsErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "").Send(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestSendWithoutURL(t *testing.T) {
	if err := NewClient("  ", "").Send(context.Background(), "1", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
