package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/retry"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIStore is a Store backed by a remote document service. Transient failures
// (429, 5xx, network errors) are retried with backoff; 404 maps to
// ErrNotFound so callers see the same contract as the directory adapter.
type APIStore struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	policy     retry.Policy
	logger     zerolog.Logger
}

// NewAPIStore creates a remote store client for the given base URL.
func NewAPIStore(baseURL, apiKey string, logger zerolog.Logger) *APIStore {
	s := &APIStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.StorePolicy(),
		logger:     logger.With().Str("component", "store.api").Logger(),
	}
	s.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Debug().Int("attempt", attempt).Dur("backoff", delay).Err(err).
			Msg("retrying store API request")
	}
	return s
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (s *APIStore) SetHTTPClient(hc HTTPClient) {
	s.httpClient = hc
}

// ReadStructured fetches, decodes, and validates the document at key.
func (s *APIStore) ReadStructured(ctx context.Context, key string, out any) error {
	data, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	return Decode(key, data, out)
}

// WriteStructured encodes and uploads the document at key.
func (s *APIStore) WriteStructured(ctx context.Context, key string, v any) error {
	data, err := Encode(key, v)
	if err != nil {
		return err
	}
	return s.put(ctx, key, data)
}

// ReadText fetches the raw text document at key.
func (s *APIStore) ReadText(ctx context.Context, key string) (string, error) {
	data, err := s.get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText uploads a raw text document at key.
func (s *APIStore) WriteText(ctx context.Context, key, content string) error {
	return s.put(ctx, key, []byte(content))
}

// Exists reports whether a document is stored at key.
func (s *APIStore) Exists(ctx context.Context, key string) (bool, error) {
	err := s.do(ctx, http.MethodHead, s.documentURL(key), nil, nil)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// Delete removes the document at key. Absent keys are not an error.
func (s *APIStore) Delete(ctx context.Context, key string) error {
	err := s.do(ctx, http.MethodDelete, s.documentURL(key), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// List returns all keys under prefix, sorted by the service.
func (s *APIStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	u := s.baseURL + "/api/v1/documents?prefix=" + url.QueryEscape(prefix)
	if err := s.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// ListDirectories returns the immediate child directory names under prefix.
func (s *APIStore) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	u := s.baseURL + "/api/v1/directories?prefix=" + url.QueryEscape(prefix)
	if err := s.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

func (s *APIStore) documentURL(key string) string {
	return s.baseURL + "/api/v1/documents/" + url.PathEscape(key)
}

func (s *APIStore) get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		body, err := s.execute(ctx, http.MethodGet, s.documentURL(key), nil)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, perrors.NotFound("document", key)
		}
		return nil, err
	}
	return data, nil
}

func (s *APIStore) put(ctx context.Context, key string, data []byte) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.execute(ctx, http.MethodPut, s.documentURL(key), data)
		return err
	})
}

// do runs one retried request and optionally decodes a JSON response into out.
func (s *APIStore) do(ctx context.Context, method, url string, body []byte, out any) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		respBody, err := s.execute(ctx, method, url, body)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	})
}

// execute performs a single HTTP exchange and maps failure statuses onto the
// error taxonomy. Network errors surface as ErrUnavailable so the retry loop
// picks them up.
func (s *APIStore) execute(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w: %w", err, perrors.ErrUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Debug().Int("status", resp.StatusCode).Str("url", url).Msg("store API request failed")
		return nil, perrors.NewAPIError(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func isNotFound(err error) bool {
	var apiErr *perrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}
