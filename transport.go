package netsched

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTransport is a Transport backed by net/http. Non-2xx responses are
// returned as transport errors carrying the status, matching the wire
// contract this layer expects.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps an *http.Client. A nil client uses a default with a
// 30 second timeout.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{client: client}
}

// Do executes one network call.
func (t *HTTPTransport) Do(ctx context.Context, req *TransportRequest) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    headers,
	}

	if httpResp.StatusCode >= 400 {
		return resp, fmt.Errorf("request failed with status %d", httpResp.StatusCode)
	}
	return resp, nil
}
