package netsched

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportRoundtrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Source") != "netsched" {
			t.Errorf("Header not forwarded, got %q", r.Header.Get("X-Request-Source"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil)
	resp, err := transport.Do(context.Background(), &TransportRequest{
		Method:  "GET",
		URL:     server.URL,
		Headers: map[string]string{"X-Request-Source": "netsched"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Unexpected body: %s", resp.Body)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("Response headers not captured: %v", resp.Headers)
	}
}

func TestHTTPTransportFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil)
	resp, err := transport.Do(context.Background(), &TransportRequest{Method: "GET", URL: server.URL})
	if err == nil {
		t.Fatal("Expected an error for a 503 response")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Response should still carry the status, got %+v", resp)
	}
}

func TestHTTPTransportHonorsTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	transport := NewHTTPTransport(nil)
	start := time.Now()
	_, err := transport.Do(context.Background(), &TransportRequest{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestHTTPTransportSendsBody(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		received = buf
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil)
	resp, err := transport.Do(context.Background(), &TransportRequest{
		Method: "POST",
		URL:    server.URL,
		Body:   []byte(`{"name":"x"}`),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201, got %d", resp.StatusCode)
	}
	if string(received) != `{"name":"x"}` {
		t.Errorf("Body not delivered, got %q", received)
	}
}
