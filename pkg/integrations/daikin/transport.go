package daikin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport talks to the air conditioner. Payload encryption is handled by
// the device firmware bridge.
type Transport interface {
	GetThingInfo(ctx context.Context, host string, key string, endpoint string) (map[string]interface{}, error)
	SendOperationData(ctx context.Context, host string, key string, payload map[string]interface{}) (map[string]interface{}, error)
}

type HttpTransport struct {
	client *http.Client
}

func NewHttpTransport(client *http.Client) *HttpTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HttpTransport{client: client}
}

func (t *HttpTransport) GetThingInfo(ctx context.Context, host string, key string, endpoint string) (map[string]interface{}, error) {
	return t.do(ctx, http.MethodGet, host, key, endpoint, nil)
}

func (t *HttpTransport) SendOperationData(ctx context.Context, host string, key string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return t.do(ctx, http.MethodPost, host, key, endpointStatus, body)
}

func (t *HttpTransport) do(ctx context.Context, method string, host string, key string, endpoint string, body []byte) (map[string]interface{}, error) {
	url := fmt.Sprintf("http://%s/%s", host, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Device-Key", key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s: %w", url, err)
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	result := map[string]interface{}{}
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", url, err)
	}
	return result, nil
}
