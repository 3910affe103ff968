package services

import (
	"context"
	"fmt"

	"syncer/src/clients/twenty"
	"syncer/src/excel"
	"syncer/src/repositories"
	"syncer/src/schemas"
	"syncer/src/utils"
)

type SyncServiceI interface {
	SyncAll(ctx context.Context) (schemas.SyncStats, error)
	Pull(ctx context.Context) (schemas.SyncStats, error)
	Push(ctx context.Context) (schemas.SyncStats, error)
}

// SyncService orchestrates one pass: fetch both stores, diff against the
// ledger, resolve conflicts, execute the ordered write batches and persist
// the ledger. A pass is strictly sequential; the scheduler guarantees no
// two passes overlap on the same ledger file.
type SyncService struct {
	crmClient    twenty.TwentyServiceClientI
	excelHandler excel.ExcelHandlerI
	ledgerRepo   repositories.LedgerRepository

	diffService *DiffService
	apply       ApplyServiceI
	resolver    *ConflictResolver
	objects     []schemas.ObjectType
}

func NewSyncService(crmClient twenty.TwentyServiceClientI, excelHandler excel.ExcelHandlerI, ledgerRepo repositories.LedgerRepository, resolver *ConflictResolver, objects []schemas.ObjectType) *SyncService {
	return &SyncService{
		crmClient:    crmClient,
		excelHandler: excelHandler,
		ledgerRepo:   ledgerRepo,
		diffService:  NewDiffService(),
		apply:        NewApplyService(crmClient, excelHandler, ledgerRepo),
		resolver:     resolver,
		objects:      objects,
	}
}

// SyncAll runs a full two-way pass for every configured object type. A
// store that is unreachable aborts the pass for that object before any
// write; per-record failures are collected into the stats instead.
func (s *SyncService) SyncAll(ctx context.Context) (schemas.SyncStats, error) {
	logger := utils.LoggerFromContext(ctx)

	ledger := s.ledgerRepo.Load(ctx)
	stats := schemas.SyncStats{}

	for _, object := range s.objects {
		report, err := s.syncObject(ctx, object, ledger)
		if err != nil {
			return stats, fmt.Errorf("syncing %s: %w", object.Name, err)
		}
		stats[object.Name] = report
		logger.WithField("object", object.Name).Infof(
			"Sync done: %d created remotely, %d updated remotely, %d written locally, %d failed, %d for review",
			report.RemoteCreates, report.RemoteUpdates, report.LocalWrites, len(report.Failures), len(report.NeedsReview),
		)
	}
	return stats, nil
}

func (s *SyncService) syncObject(ctx context.Context, object schemas.ObjectType, ledger schemas.Ledger) (*schemas.Report, error) {
	remote, err := s.crmClient.FetchAll(ctx, object.Name)
	if err != nil {
		return nil, err
	}
	local, err := s.excelHandler.ReadAll(object)
	if err != nil {
		return nil, err
	}
	local = s.validateLocal(ctx, object, local)

	set := s.diffService.Diff(ctx, object, remote, local, ledger.EntriesFor(object.Name))
	plan := s.apply.Plan(ctx, set, s.resolver)
	return s.apply.Execute(ctx, plan, ledger)
}

// validateLocal drops rows the engine cannot reconcile: a row that carries
// an id must also carry a parsable updatedAt, otherwise timestamp
// comparison is meaningless. Rows without an id are new records and may
// legitimately lack a timestamp.
func (s *SyncService) validateLocal(ctx context.Context, object schemas.ObjectType, local []schemas.Record) []schemas.Record {
	logger := utils.LoggerFromContext(ctx)

	valid := local[:0]
	for _, rec := range local {
		if rec.ID() != "" && rec.UpdatedAt().IsZero() {
			logger.Warnf("Skipping %s row %d (id %s): missing or unparsable updatedAt", object.Name, rec.RowRef(), rec.ID())
			continue
		}
		valid = append(valid, rec)
	}
	return valid
}

// Pull overwrites the workbook with the current CRM state and records
// every pulled record in the ledger as freshly reconciled.
func (s *SyncService) Pull(ctx context.Context) (schemas.SyncStats, error) {
	logger := utils.LoggerFromContext(ctx)

	ledger := s.ledgerRepo.Load(ctx)
	stats := schemas.SyncStats{}

	for _, object := range s.objects {
		remote, err := s.crmClient.FetchAll(ctx, object.Name)
		if err != nil {
			return stats, fmt.Errorf("pulling %s: %w", object.Name, err)
		}
		if err := s.excelHandler.WriteAll(object, remote); err != nil {
			return stats, fmt.Errorf("writing %s sheet: %w", object.SheetName, err)
		}
		for _, rec := range remote {
			ledger.Mark(object.Name, rec.ID(), rec.UpdatedAtString(), rec.UpdatedAtString())
		}
		stats[object.Name] = &schemas.Report{Object: object.Name, LocalWrites: len(remote)}
		logger.Infof("Pulled %d %s into sheet %s", len(remote), object.Name, object.SheetName)
	}

	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return stats, fmt.Errorf("persisting ledger: %w", err)
	}
	return stats, nil
}

// Push sends local-side changes to the CRM without pulling remote-side
// edits into the workbook. New rows are created, rows whose timestamp
// advanced are updated; the workbook always wins on records changed on
// both sides.
func (s *SyncService) Push(ctx context.Context) (schemas.SyncStats, error) {
	ledger := s.ledgerRepo.Load(ctx)
	stats := schemas.SyncStats{}
	pushResolver := NewConflictResolver(schemas.StrategyExcelWins)

	for _, object := range s.objects {
		remote, err := s.crmClient.FetchAll(ctx, object.Name)
		if err != nil {
			return stats, fmt.Errorf("pushing %s: %w", object.Name, err)
		}
		local, err := s.excelHandler.ReadAll(object)
		if err != nil {
			return stats, err
		}
		local = s.validateLocal(ctx, object, local)

		set := s.diffService.Diff(ctx, object, remote, local, ledger.EntriesFor(object.Name))
		plan := s.apply.Plan(ctx, set, pushResolver)
		// One-way: drop planned writes that only pull CRM data down.
		plan.LocalWrites = nil

		report, err := s.apply.Execute(ctx, plan, ledger)
		if err != nil {
			return stats, err
		}
		stats[object.Name] = report
	}
	return stats, nil
}
