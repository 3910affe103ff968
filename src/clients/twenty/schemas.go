package twenty

import (
	"encoding/json"

	"syncer/src/schemas"
)

// ListResponse is one page of GET /rest/{object}. The record list sits
// under data keyed by the pluralised object name.
type ListResponse struct {
	Data     json.RawMessage `json:"data"`
	PageInfo PageInfo        `json:"pageInfo"`
}

type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// extractRecords pulls the record list out of a Twenty response body. The
// API nests records under varying keys (object name, operation name), so
// the lookup falls back to the first list value, then to a single record.
func extractRecords(raw json.RawMessage, object string) []schemas.Record {
	if len(raw) == 0 {
		return nil
	}

	var asList []schemas.Record
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil
	}

	if inner, ok := asMap["data"]; ok {
		return extractRecords(inner, object)
	}
	if inner, ok := asMap[object]; ok {
		if err := json.Unmarshal(inner, &asList); err == nil {
			return asList
		}
	}
	for _, v := range asMap {
		if err := json.Unmarshal(v, &asList); err == nil && asList != nil {
			return asList
		}
	}

	// Single record response, possibly nested under an operation key.
	var single schemas.Record
	if err := json.Unmarshal(raw, &single); err == nil && single.ID() != "" {
		return []schemas.Record{single}
	}
	for _, v := range asMap {
		if err := json.Unmarshal(v, &single); err == nil && single.ID() != "" {
			return []schemas.Record{single}
		}
	}
	return nil
}
