// Package assets uploads message images to the external asset service and
// manages the temporary files the HTTP boundary spools uploads into.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no asset service URL is set.
var ErrNotConfigured = errors.New("asset service not configured")

// Uploader pushes the file at path to durable storage and returns its
// public URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// HTTPUploader posts a multipart "file" field to Endpoint. The service
// answers {"url": "..."} on 2xx.
type HTTPUploader struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPUploader returns an uploader with a bounded client timeout.
func NewHTTPUploader(endpoint, apiKey string, timeout time.Duration) *HTTPUploader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPUploader{
		Endpoint: strings.TrimSpace(endpoint),
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, path string) (string, error) {
	if u.Endpoint == "" {
		return "", ErrNotConfigured
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.APIKey)
	}

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("asset service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("asset service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("asset service: decode: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", errors.New("asset service: empty url")
	}
	return out.URL, nil
}

// Discard removes a spooled upload. A missing file is not an error.
func Discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("discard upload")
	}
}
