// Package provider contains message delivery channel implementations.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tagihin/tagihin/internal/config"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// WhatsApp delivers messages through an HTTP WhatsApp gateway.
type WhatsApp struct {
	apiURL     string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewWhatsApp(cfg config.Config, log *zap.Logger) *WhatsApp {
	return &WhatsApp{
		apiURL:     cfg.WhatsAppAPIURL,
		token:      cfg.WhatsAppToken,
		httpClient: &http.Client{Timeout: sendTimeout},
		log:        log.Named("notification.whatsapp"),
	}
}

func (w *WhatsApp) Send(ctx context.Context, to string, message string) error {
	form := url.Values{}
	form.Set("target", to)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", w.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
