package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"auctionsearch/internal/domain"
)

const DefaultRetryDelay = 3 * time.Second

// ErrStatus is returned for responses that are neither successful nor retryable.
var ErrStatus = errors.New("unexpected upstream status")

// Client pulls changed items from the system of record.
type Client struct {
	baseURL    string
	itemsPath  string
	httpClient *http.Client
	retryDelay time.Duration
}

type Config struct {
	BaseURL    string
	ItemsPath  string
	RetryDelay time.Duration
	Timeout    time.Duration // per attempt; 0 means none
}

func NewClient(cfg Config) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = "/items"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		itemsPath:  "/" + strings.TrimPrefix(cfg.ItemsPath, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryDelay: cfg.RetryDelay,
	}
}

// FetchSince returns every item updated strictly after watermark, or all
// items when watermark is nil. Transport failures, 5xx, 408 and 404 are
// retried at a fixed delay until they succeed or ctx ends.
func (c *Client) FetchSince(ctx context.Context, watermark *time.Time) ([]domain.Item, error) {
	endpoint := c.endpoint(watermark)
	attempt := 0

	var items []domain.Item
	err := retry.Do(ctx, retry.NewConstant(c.retryDelay), func(ctx context.Context) error {
		attempt++
		got, err := c.fetch(ctx, endpoint)
		if err != nil {
			var te *transientError
			if errors.As(err, &te) {
				log.Warn().Err(err).Int("attempt", attempt).Str("url", endpoint).
					Dur("retry_in", c.retryDelay).Msg("upstream not ready, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		items = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) endpoint(watermark *time.Time) string {
	date := ""
	if watermark != nil {
		date = watermark.UTC().Format(time.RFC3339Nano)
	}
	return c.baseURL + c.itemsPath + "?date=" + url.QueryEscape(date)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) fetch(ctx context.Context, endpoint string) ([]domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{fmt.Errorf("failed to fetch items: %w", err)}
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("failed to close upstream body")
		}
	}()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		err := fmt.Errorf("%w: %d", ErrStatus, res.StatusCode)
		if retryableStatus(res.StatusCode) {
			return nil, &transientError{err}
		}
		return nil, err
	}

	var wire []itemDTO
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	items := make([]domain.Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toDomain())
	}
	return items, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusNotFound || code == http.StatusRequestTimeout || code >= 500
}
