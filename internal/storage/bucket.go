// Package storage implements the Artifact Store Client: a
// single-bucket GCS client used to upload the assembled document and to
// serve thumbnails/page images, with a local emulator mode for dev and
// tests.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-backend/internal/clients/gcp"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

// Client is the Artifact Store Client. JSON artifacts and page images alike
// are written here under job-scoped keys (built in package pipeline, e.g.
// ArtifactKey).
type Client interface {
	Upload(ctx context.Context, key string, content io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	PublicURL(key string) string
}

type client struct {
	log           *logger.Logger
	storageClient *storage.Client
	mode          Mode
	emulatorHost  string
	bucket        string
	cdnDomain     string
	publicBaseURL string
}

func New(log *logger.Logger) (Client, error) {
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewWithConfig(log, cfg)
}

func NewWithConfig(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	slog := log.With("service", "ArtifactStoreClient")

	bucket := strings.TrimSpace(os.Getenv("ARTIFACT_GCS_BUCKET_NAME"))
	if bucket == "" {
		return nil, fmt.Errorf("missing env var ARTIFACT_GCS_BUCKET_NAME")
	}
	cdnDomain := strings.TrimSpace(os.Getenv("ARTIFACT_CDN_DOMAIN"))

	publicBaseURL, publicBaseSource, err := resolvePublicBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	slog.Info("artifact store initialized",
		"mode", cfg.Mode, "mode_source", cfg.ModeSource(), "emulator_host", cfg.EmulatorHost,
		"public_base_source", publicBaseSource, "public_base_url", publicBaseURL, "bucket", bucket,
	)

	return &client{
		log:           slog,
		storageClient: stClient,
		mode:          cfg.Mode,
		emulatorHost:  strings.TrimRight(cfg.EmulatorHost, "/"),
		bucket:        bucket,
		cdnDomain:     cdnDomain,
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, cfg Config) (*storage.Client, error) {
	switch cfg.Mode {
	case ModeGCS:
		opts := append(gcp.ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

func resolvePublicBaseURL(cfg Config) (baseURL, source string, err error) {
	raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL"))
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL", raw)
		}
		return strings.TrimRight(raw, "/"), "object_storage_public_base_url", nil
	}
	if cfg.IsEmulatorMode() {
		return strings.TrimRight(cfg.EmulatorHost, "/"), "storage_emulator_host", nil
	}
	return "", "gcs_default", nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	default:
		return ""
	}
}

func (c *client) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.storageClient.Bucket(c.bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func (c *client) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.storageClient.Bucket(c.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (c *client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := c.storageClient.Bucket(c.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (c *client) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, key)
	}
	if c.mode == ModeGCSEmulator {
		base := strings.TrimRight(c.publicBaseURL, "/")
		if base == "" {
			base = strings.TrimRight(c.emulatorHost, "/")
		}
		if base != "" {
			return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(c.bucket), url.PathEscape(key))
		}
	}
	if c.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucket, key)
}

// readCloserWithCancel keeps the download context alive until the caller
// closes the reader; cancelling eagerly truncates the read to zero bytes.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (c *client) isEmulatorMode() bool {
	return IsEmulatorMode(c.mode) && c.emulatorHost != ""
}

func (c *client) emulatorObjectMediaURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", strings.TrimRight(c.emulatorHost, "/"), url.PathEscape(c.bucket), url.PathEscape(key))
}

func (c *client) emulatorObjectMetaURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/b/%s/o/%s", strings.TrimRight(c.emulatorHost, "/"), url.PathEscape(c.bucket), url.PathEscape(key))
}

func (c *client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if c.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, c.emulatorObjectMediaURL(key), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("emulator download request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("emulator download: %w", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := c.storageClient.Bucket(c.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open reader for %s: %w", key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (c *client) GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	if c.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, c.emulatorObjectMetaURL(key), nil)
		if err != nil {
			return nil, fmt.Errorf("emulator attrs request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("emulator attrs: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		var payload struct {
			Size        string `json:"size"`
			ContentType string `json:"contentType"`
			Updated     string `json:"updated"`
			ETag        string `json:"etag"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode emulator attrs: %w", err)
		}
		size, _ := strconv.ParseInt(payload.Size, 10, 64)
		var updated time.Time
		if ts := strings.TrimSpace(payload.Updated); ts != "" {
			if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
				updated = parsed
			}
		}
		return &ObjectAttrs{Size: size, ContentType: payload.ContentType, Updated: updated, ETag: payload.ETag}, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := c.storageClient.Bucket(c.bucket).Object(key).Attrs(ctx2)
	if err != nil {
		return nil, fmt.Errorf("fetch attrs for %s: %w", key, err)
	}
	return &ObjectAttrs{Size: attrs.Size, ContentType: attrs.ContentType, Updated: attrs.Updated, ETag: attrs.Etag}, nil
}
