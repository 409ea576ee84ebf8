package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/playtestlabs/playtest/internal/config"
	storagedomain "github.com/playtestlabs/playtest/internal/storage/domain"
)

type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func New(cfg config.Config) *Client {
	return &Client{
		baseURL:    cfg.SupabaseURL,
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.StorageBucket,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Put uploads with x-upsert disabled so a path collision surfaces as
// ErrObjectExists instead of overwriting the stored object.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return c.PublicURL(path), nil
	case resp.StatusCode == http.StatusConflict:
		return "", storagedomain.ErrObjectExists
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", storagedomain.ErrUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &storagedomain.StoreError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// PublicURL is deterministic for any path ever written to the public bucket.
func (c *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, path)
}
