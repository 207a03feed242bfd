package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

const (
	apiBase       = "https://storage.googleapis.com/storage/v1"
	uploadBase    = "https://storage.googleapis.com/upload/storage/v1"
	publicBase    = "https://storage.googleapis.com"
	pingTimeout   = 5 * time.Second
	clientTimeout = 30 * time.Second
)

// Client talks to the GCS JSON API for a single bucket.
type Client struct {
	httpClient  *http.Client
	bucket      string
	tokenSource oauth2.TokenSource
}

var _ storage.Store = (*Client)(nil)

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := &http.Client{Timeout: clientTimeout}

	ts, err := tokenSourceFor(ctx, gcp)
	if err != nil {
		return nil, err
	}

	client := &Client{
		httpClient:  httpClient,
		bucket:      cfg.BucketName,
		tokenSource: ts,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}

	return client, nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping lists at most one object to confirm credentials and bucket access.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.tokenSource == nil {
		return errors.New("gcs client not initialized")
	}
	if c.bucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/b/%s/o?maxResults=1", apiBase, url.PathEscape(c.bucket))
	resp, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError("gcs object check failed", resp)
	}
	return nil
}

// Put uploads body with a simple media upload and returns its public URL.
func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader) (storage.Object, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return storage.Object{}, err
	}

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", clean)
	u := fmt.Sprintf("%s/b/%s/o?%s", uploadBase, url.PathEscape(c.bucket), q.Encode())

	resp, err := c.do(ctx, http.MethodPost, u, body, contentType)
	if err != nil {
		return storage.Object{}, fmt.Errorf("gcs upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return storage.Object{}, apiError("gcs upload failed", resp)
	}
	return storage.Object{Key: clean, URL: c.PublicURL(clean)}, nil
}

// Delete removes the object. A missing object counts as deleted.
func (c *Client) Delete(ctx context.Context, key string) error {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/b/%s/o/%s", apiBase, url.PathEscape(c.bucket), url.PathEscape(clean))
	resp, err := c.do(ctx, http.MethodDelete, u, nil, "")
	if err != nil {
		return fmt.Errorf("gcs delete: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return apiError("gcs delete failed", resp)
	}
}

func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", publicBase, c.bucket, key)
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	if c.tokenSource == nil {
		return nil, errors.New("gcs client not initialized")
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("gcs token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.httpClient.Do(req)
}

// apiError turns a non-2xx response into a *googleapi.Error, which decodes
// the JSON error envelope GCS returns.
func apiError(prefix string, resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		err = fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// IsNotFound reports whether err carries a 404 from the storage API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
