package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"syncer/src/config"
	"syncer/src/schemas"
	"syncer/src/utils"
	requests "syncer/src/utils/requests"
)

const (
	baseURL    = "https://api.linkedin.com"
	apiVersion = "202312"
)

type LinkedInServiceClientI interface {
	GetSnapshot(ctx context.Context, domain string) ([]map[string]string, error)
	GetProfile(ctx context.Context) ([]map[string]string, error)
	GetConnections(ctx context.Context) ([]map[string]string, error)
	GetAllDomains(ctx context.Context) (map[string][]map[string]string, error)
}

// LinkedInServiceClient is a read-only client for the LinkedIn Member Data
// Portability (Member Snapshot) API.
type LinkedInServiceClient struct {
	API         *requests.ExternalAPIService
	BaseURL     string
	AccessToken string
	Domains     []string
}

// NewClient creates a new instance of LinkedInServiceClient. It requires a
// valid access token (configured or previously obtained via the OAuth flow).
func NewClient(cfg *config.Config) (*LinkedInServiceClient, error) {
	token, err := AccessToken(cfg)
	if err != nil {
		return nil, err
	}
	api := requests.NewExternalAPIService(nil, time.Duration(cfg.ExternalClients.Twenty.RateLimitDelayMS)*time.Millisecond)
	return &LinkedInServiceClient{
		API:         api,
		BaseURL:     baseURL,
		AccessToken: token,
		Domains:     cfg.ExternalClients.LinkedIn.SnapshotDomains,
	}, nil
}

// GetSnapshot pages through member snapshot data for one domain (PROFILE,
// CONNECTIONS, ...) and returns the flattened snapshot records. The API
// signals page exhaustion with a "No data found" error, which is not a
// failure.
func (c *LinkedInServiceClient) GetSnapshot(ctx context.Context, domain string) ([]map[string]string, error) {
	logger := utils.LoggerFromContext(ctx)
	headers := map[string]string{"Linkedin-Version": apiVersion}

	var all []map[string]string
	start := 0
	for {
		params := url.Values{}
		params.Set("q", "criteria")
		params.Set("start", strconv.Itoa(start))
		if domain != "" {
			params.Set("domain", domain)
		}

		body, err := c.API.Get(ctx, c.BaseURL+"/rest/memberSnapshotData", c.AccessToken, params, headers)
		if err != nil {
			if isNoDataFound(err) {
				break
			}
			return nil, fmt.Errorf("fetching snapshot domain %s: %w", domain, err)
		}

		var page schemas.SnapshotResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding snapshot page: %w", err)
		}
		if len(page.Elements) == 0 {
			break
		}
		for _, element := range page.Elements {
			all = append(all, element.SnapshotData...)
		}
		if !page.Paging.HasNextPage() {
			break
		}
		start++
	}

	logger.Infof("Fetched %d snapshot record(s) for domain=%s", len(all), valueOr(domain, "ALL"))
	return all, nil
}

// GetProfile returns the PROFILE snapshot records.
func (c *LinkedInServiceClient) GetProfile(ctx context.Context) ([]map[string]string, error) {
	return c.GetSnapshot(ctx, "PROFILE")
}

// GetConnections returns the CONNECTIONS snapshot records.
func (c *LinkedInServiceClient) GetConnections(ctx context.Context) ([]map[string]string, error) {
	return c.GetSnapshot(ctx, "CONNECTIONS")
}

// GetAllDomains pulls every configured snapshot domain. A domain that
// fails is reported as empty rather than failing the whole preview.
func (c *LinkedInServiceClient) GetAllDomains(ctx context.Context) (map[string][]map[string]string, error) {
	logger := utils.LoggerFromContext(ctx)

	result := map[string][]map[string]string{}
	for _, domain := range c.Domains {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		records, err := c.GetSnapshot(ctx, domain)
		if err != nil {
			logger.Errorf("Failed to fetch domain %s: %v", domain, err)
			result[domain] = nil
			continue
		}
		result[domain] = records
	}
	return result, nil
}

func isNoDataFound(err error) bool {
	var httpErr *utils.HTTPError
	if errors.As(err, &httpErr) {
		return strings.Contains(httpErr.Message, "No data found")
	}
	return false
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
