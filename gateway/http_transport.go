package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPTransport is the production Transport: a thin net/http.Client
// wrapper. GatewayCore already owns retry/timeout/circuit/rate-limit
// policy, so this layer stays a dumb dispatcher.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds an HTTPTransport with the given idle-connection
// timeout applied to its underlying client.
func NewHTTPTransport(idleTimeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{
		Transport: &http.Transport{IdleConnTimeout: idleTimeout},
	}}
}

// Do issues req and converts the net/http response into gateway's Response
// shape, reading the body fully since GatewayCore may cache or retry it.
func (t *HTTPTransport) Do(ctx context.Context, req *OutgoingRequest) (*Response, error) {
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

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}
