package services

import "syncer/src/schemas"

// ConflictResolver decides the winning side for records changed on both
// sides since the last reconciliation. Resolution is last-writer-take-all
// at record granularity: the losing side receives the winner's complete
// synced field set, never a field-by-field merge.
type ConflictResolver struct {
	Strategy schemas.ConflictStrategy
}

func NewConflictResolver(strategy schemas.ConflictStrategy) *ConflictResolver {
	if strategy == "" {
		strategy = schemas.StrategyNewestWins
	}
	return &ConflictResolver{Strategy: strategy}
}

// Resolve returns the side whose record wins. Under newest_wins an exact
// updatedAt tie goes to the CRM; the tie-break is arbitrary but must be
// deterministic.
func (r *ConflictResolver) Resolve(remote, local schemas.Record) schemas.Side {
	switch r.Strategy {
	case schemas.StrategyCRMWins:
		return schemas.SideRemote
	case schemas.StrategyExcelWins:
		return schemas.SideLocal
	}

	remoteTS := remote.UpdatedAt()
	localTS := local.UpdatedAt()
	if localTS.After(remoteTS) {
		return schemas.SideLocal
	}
	return schemas.SideRemote
}
