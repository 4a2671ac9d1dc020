package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const defaultTimeout = 120 * time.Second

type baseProvider struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newBaseProvider(name, baseURL, apiKey, model string) baseProvider {
	return baseProvider{
		name: name,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

func (b *baseProvider) doRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", core.AppUserAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		// Network failures and timeouts are worth another attempt; a
		// cancelled caller is not.
		return nil, &core.ExternalServiceError{
			Service:   b.name,
			Transient: !errors.Is(err, context.Canceled),
			Err:       err,
		}
	}
	return resp, nil
}

// readBody drains resp and converts non-2xx answers into ExternalServiceError.
func (b *baseProvider) readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ExternalServiceError{Service: b.name, Transient: true, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.ExternalServiceError{
			Service:   b.name,
			Status:    resp.StatusCode,
			Transient: isTransientStatus(resp.StatusCode),
			Err:       errors.New(truncate(string(data), 300)),
		}
	}
	return data, nil
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

func dataURI(img core.Image) string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
