package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"syncer/src/utils"
)

const (
	maxRetries  = 4
	backoffBase = 500 * time.Millisecond
)

// ExternalAPIService is a small HTTP helper shared by the external API
// clients. It owns request pacing and retry-on-throttle: a fixed minimum
// delay between calls plus bounded exponential back-off on 429/5xx
// responses, honoring Retry-After when the server sends one. Errors are
// surfaced to callers only after retries exhaust.
type ExternalAPIService struct {
	Client   *http.Client
	MinDelay time.Duration
}

// NewExternalAPIService creates a new instance of ExternalAPIService.
// A nil client falls back to a default with a 30s timeout.
func NewExternalAPIService(client *http.Client, minDelay time.Duration) *ExternalAPIService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ExternalAPIService{Client: client, MinDelay: minDelay}
}

// Do executes one request and returns the response body. Query parameters
// and the JSON body are both optional. Retries happen inside; the returned
// error is terminal.
func (s *ExternalAPIService) Do(ctx context.Context, method, endpoint, token string, params url.Values, body interface{}, headers map[string]string) ([]byte, error) {
	if params != nil {
		endpoint = endpoint + "?" + params.Encode()
	}

	var jsonBody []byte
	var err error
	if body != nil {
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	var responseBody []byte
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(backoffBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(jsonBody))
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		responseBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if wait := retryAfter(resp); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return retry.RetryableError(utils.NewHTTPError(resp.StatusCode, string(responseBody)))
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(utils.NewHTTPError(resp.StatusCode, string(responseBody)))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return utils.NewHTTPError(resp.StatusCode, string(responseBody))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.MinDelay > 0 {
		time.Sleep(s.MinDelay)
	}
	return responseBody, nil
}

// Get makes a GET request to the external service, accepting optional query parameters
func (s *ExternalAPIService) Get(ctx context.Context, endpoint, token string, params url.Values, headers map[string]string) ([]byte, error) {
	return s.Do(ctx, http.MethodGet, endpoint, token, params, nil, headers)
}

// Post makes a POST request to the external service
func (s *ExternalAPIService) Post(ctx context.Context, endpoint, token string, body interface{}, headers map[string]string) ([]byte, error) {
	return s.Do(ctx, http.MethodPost, endpoint, token, nil, body, headers)
}

// Patch makes a PATCH request to the external service
func (s *ExternalAPIService) Patch(ctx context.Context, endpoint, token string, body interface{}, headers map[string]string) ([]byte, error) {
	return s.Do(ctx, http.MethodPatch, endpoint, token, nil, body, headers)
}

// Delete makes a DELETE request to the external service
func (s *ExternalAPIService) Delete(ctx context.Context, endpoint, token string, headers map[string]string) ([]byte, error) {
	return s.Do(ctx, http.MethodDelete, endpoint, token, nil, nil, headers)
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
