// Package extract talks to the receipt extraction service, which turns a
// receipt photo into a store name and priced line items.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cartwise/internal/model"
)

// ErrExtraction marks every failure to get a usable result out of the
// extraction service. A receipt with no items is not an error.
var ErrExtraction = errors.New("receipt extraction failed")

// ErrNotConfigured is returned when no extraction endpoint is set.
var ErrNotConfigured = fmt.Errorf("%w: no extraction service configured", ErrExtraction)

// Extractor turns a receipt image into structured data.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (model.Receipt, error)
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient posts receipt images to an extraction endpoint and decodes
// {"store_name": "...", "items": [{"name", "quantity", "price"}]}.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

const maxResponseBytes = 1 << 20

func (c *HTTPClient) Extract(ctx context.Context, image []byte, contentType string) (model.Receipt, error) {
	if c.cfg.URL == "" {
		return model.Receipt{}, ErrNotConfigured
	}
	if len(image) == 0 {
		return model.Receipt{}, fmt.Errorf("%w: empty image", ErrExtraction)
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(image))
	if err != nil {
		return model.Receipt{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Receipt{}, fmt.Errorf("%w: status %d: %s", ErrExtraction, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var receipt model.Receipt
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&receipt); err != nil {
		return model.Receipt{}, fmt.Errorf("%w: decode response: %v", ErrExtraction, err)
	}
	return Clean(receipt)
}

// Clean trims names, drops nameless lines and rejects negative prices.
func Clean(r model.Receipt) (model.Receipt, error) {
	out := model.Receipt{StoreName: strings.TrimSpace(r.StoreName), Items: []model.ReceiptItem{}}
	for _, it := range r.Items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		if it.Price.IsNegative() {
			return model.Receipt{}, fmt.Errorf("%w: negative price for %q", ErrExtraction, it.Name)
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}
