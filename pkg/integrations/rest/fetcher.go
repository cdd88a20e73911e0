package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is the last body returned by the resource.
type Response struct {
	StatusCode  int
	ContentType string
	Body        string
}

// Fetcher issues the configured request.
type Fetcher struct {
	client   *http.Client
	method   string
	resource string
	headers  map[string]string
	params   map[string]string
	payload  string
	username string
	password string
}

// NewFetcher builds a fetcher on top of base, which may be nil.
func NewFetcher(base *http.Client, config Config) *Fetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if base != nil && base.Transport != nil {
		transport = base.Transport
	}
	if !config.VerifySsl {
		if t, ok := transport.(*http.Transport); ok {
			insecure := t.Clone()
			insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			transport = insecure
		}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	method := strings.ToUpper(config.Method)
	if method == "" {
		method = MethodGet
	}
	return &Fetcher{
		client:   &http.Client{Transport: transport, Timeout: time.Duration(timeout) * time.Second},
		method:   method,
		resource: config.Resource,
		headers:  config.Headers,
		params:   config.Params,
		payload:  config.Payload,
		username: config.Username,
		password: config.Password,
	}
}

func (f *Fetcher) Fetch(ctx context.Context) (Response, error) {
	u, err := url.Parse(f.resource)
	if err != nil {
		return Response{}, fmt.Errorf("invalid resource '%s': %w", f.resource, err)
	}
	if len(f.params) > 0 {
		query := u.Query()
		for k, v := range f.params {
			query.Set(k, v)
		}
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if f.method == MethodPost && f.payload != "" {
		body = strings.NewReader(f.payload)
	}
	req, err := http.NewRequestWithContext(ctx, f.method, u.String(), body)
	if err != nil {
		return Response{}, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("error fetching data from %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Response{}, fmt.Errorf("error reading data from %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Response{}, fmt.Errorf("%s returned HTTP %d", u.Redacted(), resp.StatusCode)
	}
	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(data),
	}, nil
}
