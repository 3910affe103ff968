package services_test

import (
	"context"
	"fmt"

	"syncer/src/schemas"
)

// crmClientMock is an in-memory stand-in for the CRM. Created and updated
// records are folded back into its record set so multi-pass tests observe
// the state a real server would expose.
type crmClientMock struct {
	remote     map[string][]schemas.Record
	createErrs map[int]error
	updateErrs map[int]error
	fetchErr   error
	nextID     int
	now        string
}

func newCRMClientMock(now string) *crmClientMock {
	return &crmClientMock{
		remote:     map[string][]schemas.Record{},
		createErrs: map[int]error{},
		updateErrs: map[int]error{},
		now:        now,
	}
}

func (m *crmClientMock) FetchAll(ctx context.Context, object string) ([]schemas.Record, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]schemas.Record, 0, len(m.remote[object]))
	for _, rec := range m.remote[object] {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *crmClientMock) BatchCreate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult {
	results := make([]schemas.BatchResult, 0, len(records))
	for i, rec := range records {
		if err := m.createErrs[i]; err != nil {
			results = append(results, schemas.BatchResult{Index: i, Err: err})
			continue
		}
		m.nextID++
		created := rec.Clone()
		created.SetID(fmt.Sprintf("gen-%d", m.nextID))
		created[schemas.FieldUpdatedAt] = m.now
		m.remote[object] = append(m.remote[object], created.Clone())
		results = append(results, schemas.BatchResult{Index: i, Record: created})
	}
	return results
}

func (m *crmClientMock) BatchUpdate(ctx context.Context, object string, records []schemas.Record) []schemas.BatchResult {
	results := make([]schemas.BatchResult, 0, len(records))
	for i, rec := range records {
		if err := m.updateErrs[i]; err != nil {
			results = append(results, schemas.BatchResult{Index: i, Err: err})
			continue
		}
		stored := m.findRemote(object, rec.ID())
		if stored == nil {
			results = append(results, schemas.BatchResult{Index: i, Err: fmt.Errorf("no such record %s", rec.ID())})
			continue
		}
		for k, v := range rec {
			stored[k] = v
		}
		stored[schemas.FieldUpdatedAt] = m.now
		results = append(results, schemas.BatchResult{Index: i, Record: stored.Clone()})
	}
	return results
}

func (m *crmClientMock) CreateRecord(ctx context.Context, object string, record schemas.Record) (schemas.Record, error) {
	results := m.BatchCreate(ctx, object, []schemas.Record{record})
	return results[0].Record, results[0].Err
}

func (m *crmClientMock) UpdateRecord(ctx context.Context, object, id string, record schemas.Record) (schemas.Record, error) {
	patch := record.Clone()
	patch.SetID(id)
	results := m.BatchUpdate(ctx, object, []schemas.Record{patch})
	return results[0].Record, results[0].Err
}

func (m *crmClientMock) DeleteRecord(ctx context.Context, object, id string) error {
	for i, rec := range m.remote[object] {
		if rec.ID() == id {
			m.remote[object] = append(m.remote[object][:i], m.remote[object][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such record %s", id)
}

func (m *crmClientMock) Health(ctx context.Context) bool {
	return true
}

func (m *crmClientMock) findRemote(object, id string) schemas.Record {
	for _, rec := range m.remote[object] {
		if rec.ID() == id {
			return rec
		}
	}
	return nil
}

// excelMock keeps one in-memory row list per object type and mimics the
// workbook adapter's upsert semantics (match by id, fall back to the row
// anchor, append otherwise).
type excelMock struct {
	sheets    map[string][]schemas.Record
	upsertErr error
	upserts   int
}

func newExcelMock() *excelMock {
	return &excelMock{sheets: map[string][]schemas.Record{}}
}

func (m *excelMock) ReadAll(object schemas.ObjectType) ([]schemas.Record, error) {
	rows := m.sheets[object.Name]
	out := make([]schemas.Record, 0, len(rows))
	for i, rec := range rows {
		clone := rec.Clone()
		clone[schemas.FieldRowRef] = i + 2
		out = append(out, clone)
	}
	return out, nil
}

func (m *excelMock) Upsert(object schemas.ObjectType, records []schemas.Record) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts += len(records)

	rows := m.sheets[object.Name]
	for _, rec := range records {
		placed := false
		for i, row := range rows {
			if rec.ID() != "" && row.ID() == rec.ID() {
				rows[i] = rec.Clone()
				placed = true
				break
			}
		}
		if !placed && rec.RowRef() >= 2 && rec.RowRef()-2 < len(rows) {
			rows[rec.RowRef()-2] = rec.Clone()
			placed = true
		}
		if !placed {
			rows = append(rows, rec.Clone())
		}
	}
	m.sheets[object.Name] = rows
	return nil
}

func (m *excelMock) WriteAll(object schemas.ObjectType, records []schemas.Record) error {
	rows := make([]schemas.Record, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Clone())
	}
	m.sheets[object.Name] = rows
	return nil
}

type ledgerRepoMock struct {
	ledger  schemas.Ledger
	saves   int
	saveErr error
}

func (m *ledgerRepoMock) Load(ctx context.Context) schemas.Ledger {
	if m.ledger == nil {
		m.ledger = schemas.Ledger{}
	}
	return m.ledger
}

func (m *ledgerRepoMock) Save(ctx context.Context, ledger schemas.Ledger) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.ledger = ledger
	return nil
}

type linkedInClientMock struct {
	connections []map[string]string
	profile     []map[string]string
	domains     map[string][]map[string]string
	err         error
}

func (m *linkedInClientMock) GetSnapshot(ctx context.Context, domain string) ([]map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.domains[domain], nil
}

func (m *linkedInClientMock) GetProfile(ctx context.Context) ([]map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

func (m *linkedInClientMock) GetConnections(ctx context.Context) ([]map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.connections, nil
}

func (m *linkedInClientMock) GetAllDomains(ctx context.Context) (map[string][]map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.domains, nil
}

func record(id, updatedAt string, fields map[string]interface{}) schemas.Record {
	rec := schemas.Record{}
	for k, v := range fields {
		rec[k] = v
	}
	if id != "" {
		rec.SetID(id)
	}
	if updatedAt != "" {
		rec[schemas.FieldUpdatedAt] = updatedAt
	}
	return rec
}
