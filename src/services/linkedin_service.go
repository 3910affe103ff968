package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"syncer/src/clients/linkedin"
	"syncer/src/clients/twenty"
	"syncer/src/excel"
	"syncer/src/schemas"
	"syncer/src/utils"
)

// SyncScope limits a LinkedIn ingestion run to part of the mapped data.
type SyncScope string

const (
	ScopeBoth      SyncScope = "both"
	ScopePeople    SyncScope = "people"
	ScopeCompanies SyncScope = "companies"
)

type LinkedInServiceI interface {
	Sync(ctx context.Context, scope SyncScope, dryRun bool) (map[string]int, error)
	Preview(ctx context.Context) (map[string]int, error)
}

// LinkedInService ingests LinkedIn Member Snapshot data into the CRM:
// connections become People, their employers become Companies. This is a
// one-way flow; no diffing or conflict resolution is involved, and the
// workbook only receives the records the CRM confirmed.
type LinkedInService struct {
	crmClient      twenty.TwentyServiceClientI
	linkedInClient linkedin.LinkedInServiceClientI
	excelHandler   excel.ExcelHandlerI
	objects        []schemas.ObjectType
}

func NewLinkedInService(crmClient twenty.TwentyServiceClientI, linkedInClient linkedin.LinkedInServiceClientI, excelHandler excel.ExcelHandlerI, objects []schemas.ObjectType) *LinkedInService {
	return &LinkedInService{
		crmClient:      crmClient,
		linkedInClient: linkedInClient,
		excelHandler:   excelHandler,
		objects:        objects,
	}
}

type mappedConnection struct {
	person  schemas.Record
	company string
}

// Sync pulls LinkedIn connections and upserts them into the CRM. With
// dryRun set, only the counters are produced and nothing is written.
func (s *LinkedInService) Sync(ctx context.Context, scope SyncScope, dryRun bool) (map[string]int, error) {
	logger := utils.LoggerFromContext(ctx)

	counters := map[string]int{
		"connections_fetched": 0,
		"people_created":      0,
		"people_updated":      0,
		"people_skipped":      0,
		"companies_created":   0,
		"companies_skipped":   0,
	}

	connections, err := s.linkedInClient.GetConnections(ctx)
	if err != nil {
		return counters, fmt.Errorf("fetching LinkedIn connections: %w", err)
	}
	counters["connections_fetched"] = len(connections)
	logger.Infof("%d connections fetched", len(connections))

	mapped := make([]mappedConnection, 0, len(connections))
	for _, conn := range connections {
		mapped = append(mapped, mapConnection(conn))
	}

	companyIDs := map[string]string{}
	if scope == ScopeBoth || scope == ScopeCompanies {
		companyIDs, err = s.ensureCompanies(ctx, mapped, dryRun, counters)
		if err != nil {
			return counters, err
		}
	}

	if scope == ScopeBoth || scope == ScopePeople {
		if err := s.upsertPeople(ctx, mapped, companyIDs, dryRun, counters); err != nil {
			return counters, err
		}
	}

	logger.Info("LinkedIn sync complete")
	return counters, nil
}

// Preview fetches every configured snapshot domain without writing.
func (s *LinkedInService) Preview(ctx context.Context) (map[string]int, error) {
	domains, err := s.linkedInClient.GetAllDomains(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for domain, records := range domains {
		counts[domain] = len(records)
	}
	return counts, nil
}

// ensureCompanies makes sure every connection's employer exists in the CRM
// and returns name -> id. Matching is by lowercased name; companies are
// created one at a time so a bad name cannot sink the rest.
func (s *LinkedInService) ensureCompanies(ctx context.Context, mapped []mappedConnection, dryRun bool, counters map[string]int) (map[string]string, error) {
	logger := utils.LoggerFromContext(ctx)

	existing, err := s.crmClient.FetchAll(ctx, "companies")
	if err != nil {
		return nil, fmt.Errorf("fetching companies: %w", err)
	}

	nameToID := map[string]string{}
	for _, rec := range existing {
		if name, ok := excel.FlattenValue(rec["name"]).(string); ok && name != "" {
			nameToID[strings.ToLower(strings.TrimSpace(name))] = rec.ID()
		}
		// A connection's Company cell sometimes holds a bare domain.
		if domain, ok := excel.FlattenValue(rec["domainName"]).(string); ok && domain != "" {
			nameToID[strings.ToLower(strings.TrimSpace(domain))] = rec.ID()
		}
	}

	names := map[string]bool{}
	for _, m := range mapped {
		if m.company != "" {
			names[m.company] = true
		}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	var failed []string
	for _, name := range ordered {
		key := strings.ToLower(name)
		if _, ok := nameToID[key]; ok {
			counters["companies_skipped"]++
			continue
		}
		if dryRun {
			counters["companies_created"]++
			continue
		}
		created, err := s.crmClient.CreateRecord(ctx, "companies", schemas.Record{"name": name})
		if err != nil {
			failed = append(failed, name)
			logger.Debugf("Failed to create company %q: %v", name, err)
			continue
		}
		nameToID[key] = created.ID()
		counters["companies_created"]++
	}

	if dryRun {
		logger.Infof("[DRY RUN] Would create %d companies", counters["companies_created"])
	} else {
		logger.Infof("Companies: %d created, %d already existed", counters["companies_created"], counters["companies_skipped"])
	}
	if len(failed) > 0 {
		logger.Warnf("%d companies failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nameToID, nil
}

// upsertPeople matches each mapped connection against existing People by
// LinkedIn URL, falling back to full name, then batch creates/updates.
func (s *LinkedInService) upsertPeople(ctx context.Context, mapped []mappedConnection, companyIDs map[string]string, dryRun bool, counters map[string]int) error {
	logger := utils.LoggerFromContext(ctx)

	existing, err := s.crmClient.FetchAll(ctx, "people")
	if err != nil {
		return fmt.Errorf("fetching people: %w", err)
	}

	byURL := map[string]schemas.Record{}
	byName := map[string]schemas.Record{}
	for _, rec := range existing {
		if link, ok := excel.FlattenValue(rec["linkedinLink"]).(string); ok && link != "" {
			byURL[strings.TrimRight(link, "/")] = rec
		}
		if name, ok := excel.FlattenValue(rec["name"]).(string); ok && name != "" {
			byName[strings.ToLower(name)] = rec
		}
	}

	var toCreate, toUpdate []schemas.Record
	for _, m := range mapped {
		person := m.person

		link, _ := excel.FlattenValue(person["linkedinLink"]).(string)
		link = strings.TrimRight(link, "/")
		fullName, _ := excel.FlattenValue(person["name"]).(string)

		var match schemas.Record
		if link != "" {
			match = byURL[link]
		}
		if match == nil && fullName != "" {
			match = byName[strings.ToLower(fullName)]
		}

		if id, ok := companyIDs[strings.ToLower(m.company)]; ok && id != "" {
			person["companyId"] = id
		}

		if match != nil {
			patch := person.Clone()
			delete(patch, "companyId")
			if len(patch) <= 1 { // only the name composite left
				counters["people_skipped"]++
				continue
			}
			patch.SetID(match.ID())
			toUpdate = append(toUpdate, patch)
			counters["people_updated"]++
		} else {
			toCreate = append(toCreate, person)
			counters["people_created"]++
		}
	}

	if dryRun {
		logger.Infof("[DRY RUN] Would create %d / update %d people", len(toCreate), len(toUpdate))
		return nil
	}

	var forWorkbook []schemas.Record
	for _, result := range s.crmClient.BatchCreate(ctx, "people", toCreate) {
		if result.Err != nil {
			logger.Warnf("Batch create people failed at index %d: %v", result.Index, result.Err)
			continue
		}
		forWorkbook = append(forWorkbook, result.Record)
	}
	for _, result := range s.crmClient.BatchUpdate(ctx, "people", toUpdate) {
		if result.Err != nil {
			logger.Warnf("Batch update people failed at index %d: %v", result.Index, result.Err)
		}
	}

	logger.Infof("People: %d created, %d updated, %d skipped",
		counters["people_created"], counters["people_updated"], counters["people_skipped"])

	if len(forWorkbook) > 0 {
		if object, ok := s.objectByName("people"); ok {
			if err := s.excelHandler.Upsert(object, forWorkbook); err != nil {
				logger.Errorf("Failed to write LinkedIn records to the workbook: %v", err)
			}
		}
	}
	return nil
}

func (s *LinkedInService) objectByName(name string) (schemas.ObjectType, bool) {
	for _, object := range s.objects {
		if object.Name == name {
			return object, true
		}
	}
	return schemas.ObjectType{}, false
}

// mapConnection converts one CONNECTIONS snapshot record into a People
// payload. Snapshot keys are human-readable CSV headers.
func mapConnection(conn map[string]string) mappedConnection {
	person := schemas.Record{
		"name": map[string]interface{}{
			"firstName": conn["First Name"],
			"lastName":  conn["Last Name"],
		},
	}
	if email := conn["Email Address"]; email != "" {
		person["emails"] = map[string]interface{}{"primaryEmail": email}
	}
	if position := conn["Position"]; position != "" {
		person["jobTitle"] = position
	}
	if url := conn["URL"]; url != "" {
		person["linkedinLink"] = map[string]interface{}{"primaryLinkUrl": url}
	}
	return mappedConnection{
		person:  person,
		company: strings.TrimSpace(conn["Company"]),
	}
}
