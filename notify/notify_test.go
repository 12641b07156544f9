package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMailgunSend(t *testing.T) {
	var gotForm map[string]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		gotForm = map[string]string{
			"from":    r.PostForm.Get("from"),
			"to":      r.PostForm.Get("to"),
			"subject": r.PostForm.Get("subject"),
			"text":    r.PostForm.Get("text"),
		}
		_, gotAuth, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mg, err := NewMailgun(srv.URL, "key-test", "auth@mg.example.com")
	if err != nil {
		t.Fatalf("mailgun init failed: %v", err)
	}

	err = mg.Send(context.Background(), Message{
		To:       "user@example.com",
		Subject:  "Your One Time Login Code",
		Text:     "Your code is 12345678.",
		FromName: "Demo App",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotAuth != "key-test" {
		t.Fatalf("unexpected basic auth password: %q", gotAuth)
	}
	if gotForm["from"] != "Demo App <auth@mg.example.com>" {
		t.Fatalf("unexpected from: %q", gotForm["from"])
	}
	if gotForm["to"] != "user@example.com" {
		t.Fatalf("unexpected to: %q", gotForm["to"])
	}
}

func TestMailgunSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusUnauthorized)
	}))
	defer srv.Close()

	mg, _ := NewMailgun(srv.URL, "key-test", "auth@mg.example.com")

	err := mg.Send(context.Background(), Message{To: "user@example.com"})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestNewMailgunRequiresConfig(t *testing.T) {
	if _, err := NewMailgun("", "key", "from@example.com"); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if _, err := NewMailgun("https://api.mailgun.net/v3/mg/messages", "", "from@example.com"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
