package schemas

import "time"

// Classification tags a record after joining both stores against the ledger.
type Classification string

const (
	// ClassLocalOnly is a workbook row without an id: create it remotely.
	ClassLocalOnly Classification = "local_only"
	// ClassRemoteOnly is a CRM record never seen before: create the row.
	ClassRemoteOnly Classification = "remote_only"
	// ClassRemoteChanged advanced only on the CRM side since last sync.
	ClassRemoteChanged Classification = "remote_changed"
	// ClassLocalChanged advanced only on the workbook side since last sync.
	ClassLocalChanged Classification = "local_changed"
	// ClassConflict advanced on both sides since last sync.
	ClassConflict Classification = "conflict"
	// ClassUnchanged advanced on neither side.
	ClassUnchanged Classification = "unchanged"
	// ClassRemoteDeleted is a reconciled row whose CRM record disappeared.
	// Never acted on automatically; surfaced for manual review.
	ClassRemoteDeleted Classification = "remote_deleted"
)

// RecordDiff carries both sides' payloads for a single id. Either side may
// be nil depending on the classification.
type RecordDiff struct {
	ID     string
	Class  Classification
	Remote Record
	Local  Record
}

// ClassifiedSet partitions every observed id of one object type.
type ClassifiedSet struct {
	Object ObjectType
	Diffs  []RecordDiff
}

// ByClass returns the diffs carrying the given classification, in input order.
func (c *ClassifiedSet) ByClass(class Classification) []RecordDiff {
	var out []RecordDiff
	for _, d := range c.Diffs {
		if d.Class == class {
			out = append(out, d)
		}
	}
	return out
}

// Counts returns the number of diffs per classification.
func (c *ClassifiedSet) Counts() map[Classification]int {
	counts := map[Classification]int{}
	for _, d := range c.Diffs {
		counts[d.Class]++
	}
	return counts
}

// ConflictStrategy selects the winning side for records changed on both sides.
type ConflictStrategy string

const (
	// StrategyNewestWins compares updatedAt; the CRM wins exact ties.
	StrategyNewestWins ConflictStrategy = "newest_wins"
	// StrategyCRMWins always takes the CRM record.
	StrategyCRMWins ConflictStrategy = "crm_wins"
	// StrategyExcelWins always takes the workbook row.
	StrategyExcelWins ConflictStrategy = "excel_wins"
)

// Side names one of the two stores.
type Side string

const (
	SideRemote Side = "crm"
	SideLocal  Side = "excel"
)

// LedgerEntry stores the updatedAt pair observed when a record was last
// reconciled successfully. Absence of an entry means "never seen".
type LedgerEntry struct {
	RemoteUpdatedAt string `json:"remoteUpdatedAt"`
	LocalUpdatedAt  string `json:"localUpdatedAt"`
}

// Ledger maps object type -> record id -> last reconciled timestamps. It is
// the only state the engine persists between passes; it is loaded once per
// pass and handed around explicitly so tests can inject snapshots.
type Ledger map[string]map[string]LedgerEntry

// EntriesFor returns the per-id entries for an object type, never nil.
func (l Ledger) EntriesFor(object string) map[string]LedgerEntry {
	if entries, ok := l[object]; ok {
		return entries
	}
	return map[string]LedgerEntry{}
}

// Mark records a successful reconciliation for (object, id).
func (l Ledger) Mark(object, id string, remoteUpdatedAt, localUpdatedAt string) {
	if _, ok := l[object]; !ok {
		l[object] = map[string]LedgerEntry{}
	}
	l[object][id] = LedgerEntry{
		RemoteUpdatedAt: remoteUpdatedAt,
		LocalUpdatedAt:  localUpdatedAt,
	}
}

// Forget drops the entry for (object, id), if any.
func (l Ledger) Forget(object, id string) {
	if entries, ok := l[object]; ok {
		delete(entries, id)
	}
}

// BatchResult reports the outcome of one record within a batch request.
// Partial failure is always per-record, never all-or-nothing.
type BatchResult struct {
	Index  int
	Record Record
	Err    error
}

// RecordFailure identifies a record that could not be written this pass. It
// stays out of the ledger so the next pass retries it.
type RecordFailure struct {
	ID     string
	Side   Side
	Reason string
}

// Report summarises one executed pass for a single object type.
type Report struct {
	Object         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Counts         map[Classification]int
	RemoteCreates  int
	RemoteUpdates  int
	LocalWrites    int
	NeedsReview    []string
	Failures       []RecordFailure
}

// SyncStats aggregates the per-object reports of one pass.
type SyncStats map[string]*Report
