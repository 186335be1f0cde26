package notification

import (
	"context"
	"log"
	"time"
)

// WebhookNotifier POSTs each alert as JSON to a fixed URL. The body is the
// Alert's fields plus a "ts" RFC 3339 timestamp.
type WebhookNotifier struct {
	url string
	poster
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, poster: newPoster("webhook")}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body := struct {
		Alert
		TS string `json:"ts"`
	}{alert, time.Now().UTC().Format(time.RFC3339Nano)}

	if err := w.postJSON(ctx, w.url, body); err != nil {
		return err
	}
	log.Printf("[webhook] alert delivered: %s", alert.Title)
	return nil
}
