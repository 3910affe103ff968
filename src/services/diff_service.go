package services

import (
	"context"

	"syncer/src/schemas"
	"syncer/src/utils"
)

type DiffServiceI interface {
	Diff(ctx context.Context, object schemas.ObjectType, remote, local []schemas.Record, entries map[string]schemas.LedgerEntry) *schemas.ClassifiedSet
}

// DiffService joins the full remote and local record sets against the
// ledger and classifies every observed id. It always works from complete
// snapshots: neither store can report deltas on its own, the ledger's
// timestamp pair is what makes changes detectable.
type DiffService struct{}

func NewDiffService() *DiffService {
	return &DiffService{}
}

// Diff computes the per-record classification for one object type.
//
// The update signal is purely timestamp-based: a side counts as changed
// when its current updatedAt is strictly greater than the value the ledger
// recorded for that side (equal is not a change). Field values are never
// compared; divergence without a timestamp bump is undetectable by design.
func (s *DiffService) Diff(ctx context.Context, object schemas.ObjectType, remote, local []schemas.Record, entries map[string]schemas.LedgerEntry) *schemas.ClassifiedSet {
	logger := utils.LoggerFromContext(ctx)

	remoteByID := indexByID(remote)
	localByID := indexByID(local)

	set := &schemas.ClassifiedSet{Object: object}

	for _, rec := range remote {
		id := rec.ID()
		localRec, onBothSides := localByID[id]

		if !onBothSides {
			// New in CRM, or the row was removed locally; either way the
			// convergent action is to (re)create the row.
			set.Diffs = append(set.Diffs, schemas.RecordDiff{ID: id, Class: schemas.ClassRemoteOnly, Remote: rec})
			continue
		}

		entry, reconciled := entries[id]
		if !reconciled {
			// Both sides exist but were never reconciled: treat as changed
			// on both sides and let the conflict strategy decide.
			set.Diffs = append(set.Diffs, schemas.RecordDiff{ID: id, Class: schemas.ClassConflict, Remote: rec, Local: localRec})
			continue
		}

		remoteAdvanced := rec.UpdatedAt().After(schemas.ParseTimestamp(entry.RemoteUpdatedAt))
		localAdvanced := localRec.UpdatedAt().After(schemas.ParseTimestamp(entry.LocalUpdatedAt))

		diff := schemas.RecordDiff{ID: id, Remote: rec, Local: localRec}
		switch {
		case remoteAdvanced && localAdvanced:
			diff.Class = schemas.ClassConflict
		case remoteAdvanced:
			diff.Class = schemas.ClassRemoteChanged
		case localAdvanced:
			diff.Class = schemas.ClassLocalChanged
		default:
			diff.Class = schemas.ClassUnchanged
		}
		set.Diffs = append(set.Diffs, diff)
	}

	for _, rec := range local {
		id := rec.ID()
		if id == "" {
			// Brand-new row, not yet created in the CRM.
			set.Diffs = append(set.Diffs, schemas.RecordDiff{Class: schemas.ClassLocalOnly, Local: rec})
			continue
		}
		if _, ok := remoteByID[id]; ok {
			continue
		}
		// The row carries an id the CRM no longer returns. Deletion is
		// never propagated automatically; flag the row for manual review
		// and leave its ledger entry alone.
		logger.Warnf("%s %s exists locally but not in the CRM; flagging for review", object.Name, id)
		set.Diffs = append(set.Diffs, schemas.RecordDiff{ID: id, Class: schemas.ClassRemoteDeleted, Local: rec})
	}

	return set
}

func indexByID(records []schemas.Record) map[string]schemas.Record {
	byID := make(map[string]schemas.Record, len(records))
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			byID[id] = rec
		}
	}
	return byID
}
