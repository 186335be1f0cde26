package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sendTimeout = 10 * time.Second

// poster POSTs JSON bodies and treats any non-2xx reply as a failure.
type poster struct {
	name   string
	client *http.Client
}

func newPoster(name string) poster {
	return poster{name: name, client: &http.Client{Timeout: sendTimeout}}
}

func (p poster) postJSON(ctx context.Context, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", p.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: status %d", p.name, resp.StatusCode)
	}
	return nil
}
