package services

import (
	"context"
	"fmt"
	"time"

	"syncer/src/clients/twenty"
	"syncer/src/excel"
	"syncer/src/repositories"
	"syncer/src/schemas"
	"syncer/src/utils"
)

// RemoteOp is one planned CRM write together with the diff it came from,
// so the executor can mirror the confirmed result back to the workbook.
type RemoteOp struct {
	Diff    schemas.RecordDiff
	Payload schemas.Record
}

// SyncPlan is the ordered output of planning: remote batches first, local
// writes after, so ids generated by the CRM are available to write into
// the workbook within the same pass.
type SyncPlan struct {
	Object        schemas.ObjectType
	RemoteCreates []RemoteOp
	RemoteUpdates []RemoteOp
	LocalWrites   []schemas.Record
	NeedsReview   []string
	Counts        map[schemas.Classification]int
}

type ApplyServiceI interface {
	Plan(ctx context.Context, set *schemas.ClassifiedSet, resolver *ConflictResolver) *SyncPlan
	Execute(ctx context.Context, plan *SyncPlan, ledger schemas.Ledger) (*schemas.Report, error)
}

// ApplyService turns a classified record set into ordered write batches and
// executes them. Ledger entries are updated per record as soon as the
// corresponding write is confirmed, so a crash mid-pass leaves the ledger
// consistent with whatever subset actually succeeded.
type ApplyService struct {
	crmClient    twenty.TwentyServiceClientI
	excelHandler excel.ExcelHandlerI
	ledgerRepo   repositories.LedgerRepository
}

func NewApplyService(crmClient twenty.TwentyServiceClientI, excelHandler excel.ExcelHandlerI, ledgerRepo repositories.LedgerRepository) *ApplyService {
	return &ApplyService{
		crmClient:    crmClient,
		excelHandler: excelHandler,
		ledgerRepo:   ledgerRepo,
	}
}

// Plan maps every classification onto its write batch. Records flagged as
// deleted remotely get no destructive action: they are listed for manual
// review and their ledger entries stay untouched.
func (s *ApplyService) Plan(ctx context.Context, set *schemas.ClassifiedSet, resolver *ConflictResolver) *SyncPlan {
	logger := utils.LoggerFromContext(ctx)
	plan := &SyncPlan{Object: set.Object, Counts: set.Counts()}

	for _, d := range set.Diffs {
		switch d.Class {
		case schemas.ClassRemoteOnly, schemas.ClassRemoteChanged:
			plan.LocalWrites = append(plan.LocalWrites, mirrorRecord(d.Remote, d.Local))

		case schemas.ClassLocalOnly:
			payload := buildRemotePayload(set.Object, d.Local, nil)
			if len(payload) == 0 {
				logger.Debugf("Skipping empty %s row %d", set.Object.Name, d.Local.RowRef())
				continue
			}
			plan.RemoteCreates = append(plan.RemoteCreates, RemoteOp{Diff: d, Payload: payload})

		case schemas.ClassLocalChanged:
			payload := buildRemotePayload(set.Object, d.Local, d.Remote)
			payload.SetID(d.ID)
			plan.RemoteUpdates = append(plan.RemoteUpdates, RemoteOp{Diff: d, Payload: payload})

		case schemas.ClassConflict:
			if resolver.Resolve(d.Remote, d.Local) == schemas.SideRemote {
				plan.LocalWrites = append(plan.LocalWrites, mirrorRecord(d.Remote, d.Local))
			} else {
				payload := buildRemotePayload(set.Object, d.Local, d.Remote)
				payload.SetID(d.ID)
				plan.RemoteUpdates = append(plan.RemoteUpdates, RemoteOp{Diff: d, Payload: payload})
			}

		case schemas.ClassRemoteDeleted:
			plan.NeedsReview = append(plan.NeedsReview, d.ID)
		}
	}
	return plan
}

// Execute runs the remote batches sequentially, then applies the local
// batch (including mirrors of every confirmed remote write), then persists
// the ledger. A failed record is reported and excluded from the ledger; it
// never blocks the rest of the batch.
func (s *ApplyService) Execute(ctx context.Context, plan *SyncPlan, ledger schemas.Ledger) (*schemas.Report, error) {
	logger := utils.LoggerFromContext(ctx)
	object := plan.Object

	report := &schemas.Report{
		Object:      object.Name,
		StartedAt:   time.Now().UTC(),
		Counts:      plan.Counts,
		NeedsReview: plan.NeedsReview,
	}

	localWrites := append([]schemas.Record{}, plan.LocalWrites...)

	if len(plan.RemoteCreates) > 0 {
		payloads := opPayloads(plan.RemoteCreates)
		for _, result := range s.crmClient.BatchCreate(ctx, object.Name, payloads) {
			op := plan.RemoteCreates[result.Index]
			if result.Err != nil {
				report.Failures = append(report.Failures, schemas.RecordFailure{
					Side:   schemas.SideRemote,
					Reason: fmt.Sprintf("create from row %d: %v", op.Diff.Local.RowRef(), result.Err),
				})
				continue
			}
			if result.Record.UpdatedAt().IsZero() {
				logger.Warnf("Created %s %s came back without updatedAt; leaving it for the next pass", object.Name, result.Record.ID())
				continue
			}
			report.RemoteCreates++
			localWrites = append(localWrites, mirrorRecord(result.Record, op.Diff.Local))
		}
	}

	if len(plan.RemoteUpdates) > 0 {
		payloads := opPayloads(plan.RemoteUpdates)
		for _, result := range s.crmClient.BatchUpdate(ctx, object.Name, payloads) {
			op := plan.RemoteUpdates[result.Index]
			if result.Err != nil {
				report.Failures = append(report.Failures, schemas.RecordFailure{
					ID:     op.Diff.ID,
					Side:   schemas.SideRemote,
					Reason: result.Err.Error(),
				})
				continue
			}
			if result.Record.UpdatedAt().IsZero() {
				logger.Warnf("Updated %s %s came back without updatedAt; leaving it for the next pass", object.Name, op.Diff.ID)
				continue
			}
			report.RemoteUpdates++
			localWrites = append(localWrites, mirrorRecord(result.Record, op.Diff.Local))
		}
	}

	if len(localWrites) > 0 {
		if err := s.excelHandler.Upsert(object, localWrites); err != nil {
			// None of these rows made it to the sheet; keep them out of the
			// ledger so the next pass retries.
			for _, rec := range localWrites {
				report.Failures = append(report.Failures, schemas.RecordFailure{
					ID:     rec.ID(),
					Side:   schemas.SideLocal,
					Reason: err.Error(),
				})
			}
		} else {
			report.LocalWrites = len(localWrites)
			for _, rec := range localWrites {
				// The sheet now mirrors the CRM's authoritative timestamp,
				// so both sides of the entry observe the same value.
				ledger.Mark(object.Name, rec.ID(), rec.UpdatedAtString(), rec.UpdatedAtString())
			}
		}
	}

	report.FinishedAt = time.Now().UTC()

	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return report, fmt.Errorf("persisting ledger after %s: %w", object.Name, err)
	}
	return report, nil
}

// mirrorRecord prepares a confirmed CRM record for the workbook, keeping
// the originating row anchor when the local side already had one.
func mirrorRecord(remote, local schemas.Record) schemas.Record {
	mirror := remote.Clone()
	if local != nil && local.RowRef() != 0 {
		mirror[schemas.FieldRowRef] = local.RowRef()
	}
	return mirror
}

// buildRemotePayload converts a workbook row into the shape the CRM
// expects, rebuilding composite values from the existing CRM record when
// one is available. Empty cells are omitted rather than blanking CRM
// fields.
func buildRemotePayload(object schemas.ObjectType, local, remote schemas.Record) schemas.Record {
	payload := schemas.Record{}
	for _, field := range object.Fields {
		value, ok := local[field]
		if !ok || value == nil || value == "" {
			continue
		}
		var existing interface{}
		if remote != nil {
			existing = remote[field]
		}
		payload[field] = excel.UnflattenValue(field, value, existing)
	}
	return payload
}

func opPayloads(ops []RemoteOp) []schemas.Record {
	payloads := make([]schemas.Record, len(ops))
	for i, op := range ops {
		payloads[i] = op.Payload
	}
	return payloads
}
