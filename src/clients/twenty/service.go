package twenty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"syncer/src/config"
	"syncer/src/schemas"
	"syncer/src/utils"
	requests "syncer/src/utils/requests"
)

const pageLimit = 60

type TwentyServiceClientI interface {
	FetchAll(ctx context.Context, object string) ([]schemas.Record, error)
	BatchCreate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult
	BatchUpdate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult
	CreateRecord(ctx context.Context, object string, record schemas.Record) (schemas.Record, error)
	UpdateRecord(ctx context.Context, object, id string, record schemas.Record) (schemas.Record, error)
	DeleteRecord(ctx context.Context, object, id string) error
	Health(ctx context.Context) bool
}

// TwentyServiceClient talks to the Twenty CRM /rest API. Pagination,
// batching and rate-limit pacing are handled here so callers always see
// complete record sets and per-record batch results.
type TwentyServiceClient struct {
	API       *requests.ExternalAPIService
	BaseURL   string
	APIKey    string
	BatchSize int
}

// NewClient creates a new instance of TwentyServiceClient
func NewClient(cfg *config.Config) (*TwentyServiceClient, error) {
	twentyCfg := cfg.ExternalClients.Twenty
	client := &http.Client{Timeout: time.Duration(twentyCfg.RequestTimeoutSecs) * time.Second}
	api := requests.NewExternalAPIService(client, time.Duration(twentyCfg.RateLimitDelayMS)*time.Millisecond)

	batchSize := cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = pageLimit
	}
	return &TwentyServiceClient{
		API:       api,
		BaseURL:   strings.TrimRight(twentyCfg.BaseURL, "/"),
		APIKey:    twentyCfg.APIKey,
		BatchSize: batchSize,
	}, nil
}

func (c *TwentyServiceClient) restURL(path string) string {
	return fmt.Sprintf("%s/rest/%s", c.BaseURL, strings.TrimLeft(path, "/"))
}

// FetchAll pages through every record of the given object type. Records
// missing id or updatedAt are dropped with a warning; they cannot take part
// in timestamp-based reconciliation.
func (c *TwentyServiceClient) FetchAll(ctx context.Context, object string) ([]schemas.Record, error) {
	logger := utils.LoggerFromContext(ctx)

	var all []schemas.Record
	cursor := ""
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("starting_after", cursor)
		}

		body, err := c.API.Get(ctx, c.restURL(object), c.APIKey, params, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", object, err)
		}

		var page ListResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding %s page: %w", object, err)
		}

		records := extractRecords(page.Data, object)
		for _, rec := range records {
			if rec.ID() == "" || rec.UpdatedAt().IsZero() {
				logger.Warnf("Skipping malformed %s record (missing id or updatedAt): %v", object, rec[schemas.FieldID])
				continue
			}
			all = append(all, rec)
		}

		if len(records) == 0 || !page.PageInfo.HasNextPage {
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	logger.Infof("Fetched %d %s from CRM", len(all), object)
	return all, nil
}

// BatchCreate submits records in configured-size chunks via
// POST /rest/batch/{object}. Failure of a chunk marks each record in it as
// failed; other chunks still proceed.
func (c *TwentyServiceClient) BatchCreate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult {
	return c.batch(ctx, http.MethodPost, object, records)
}

// BatchUpdate submits updates in chunks via PATCH /rest/batch/{object}.
// Every record must carry its id.
func (c *TwentyServiceClient) BatchUpdate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult {
	return c.batch(ctx, http.MethodPatch, object, records)
}

func (c *TwentyServiceClient) batch(ctx context.Context, method, object string, records []schemas.Record) []schemas.BatchResult {
	logger := utils.LoggerFromContext(ctx)
	results := make([]schemas.BatchResult, 0, len(records))

	for start := 0; start < len(records); start += c.BatchSize {
		end := start + c.BatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		body, err := c.API.Do(ctx, method, c.restURL("batch/"+object), c.APIKey, nil, chunk, nil)
		if err != nil {
			logger.Warnf("Batch %s of %d %s failed: %v", method, len(chunk), object, err)
			for i := range chunk {
				results = append(results, schemas.BatchResult{Index: start + i, Err: err})
			}
			continue
		}

		returned := extractRecords(json.RawMessage(body), object)
		for i := range chunk {
			result := schemas.BatchResult{Index: start + i}
			switch {
			case i >= len(returned):
				result.Err = fmt.Errorf("no record returned for batch index %d", start+i)
			case returned[i].ID() == "":
				result.Err = fmt.Errorf("record returned without id at batch index %d", start+i)
			default:
				result.Record = returned[i]
			}
			results = append(results, result)
		}
	}
	return results
}

// CreateRecord creates a single record via POST /rest/{object}.
func (c *TwentyServiceClient) CreateRecord(ctx context.Context, object string, record schemas.Record) (schemas.Record, error) {
	body, err := c.API.Post(ctx, c.restURL(object), c.APIKey, record, nil)
	if err != nil {
		return nil, err
	}
	return c.singleRecord(body, object)
}

// UpdateRecord patches a single record via PATCH /rest/{object}/{id}.
func (c *TwentyServiceClient) UpdateRecord(ctx context.Context, object, id string, record schemas.Record) (schemas.Record, error) {
	body, err := c.API.Patch(ctx, c.restURL(object+"/"+id), c.APIKey, record, nil)
	if err != nil {
		return nil, err
	}
	return c.singleRecord(body, object)
}

// DeleteRecord removes a record via DELETE /rest/{object}/{id}.
func (c *TwentyServiceClient) DeleteRecord(ctx context.Context, object, id string) error {
	_, err := c.API.Delete(ctx, c.restURL(object+"/"+id), c.APIKey, nil)
	return err
}

func (c *TwentyServiceClient) singleRecord(body []byte, object string) (schemas.Record, error) {
	records := extractRecords(json.RawMessage(body), object)
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s record in response", object)
	}
	if records[0].ID() == "" {
		return nil, fmt.Errorf("%s record returned without id", object)
	}
	return records[0], nil
}

// Health probes the CRM /healthz endpoint.
func (c *TwentyServiceClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}
