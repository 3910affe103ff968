package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"syncer/src/schemas"
	"syncer/src/utils"
)

type LedgerRepository interface {
	Load(ctx context.Context) schemas.Ledger
	Save(ctx context.Context, ledger schemas.Ledger) error
}

// ledgerRepo persists the sync ledger as a JSON file. The file is the only
// state the engine owns between passes; it must never be mutated by a
// second process while a pass is running.
type ledgerRepo struct {
	Path string
}

func NewLedgerRepository(path string) LedgerRepository {
	return &ledgerRepo{Path: path}
}

// Load reads the persisted ledger. A missing or corrupt file degrades to an
// empty ledger: the next pass is a full resync, which is safe because every
// write is an idempotent upsert keyed by id.
func (r *ledgerRepo) Load(ctx context.Context) schemas.Ledger {
	logger := utils.LoggerFromContext(ctx)

	data, err := os.ReadFile(r.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Could not read ledger %s: %v. Starting with an empty ledger.", r.Path, err)
		}
		return schemas.Ledger{}
	}

	var ledger schemas.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		logger.Warnf("Ledger %s is corrupt: %v. Starting with an empty ledger.", r.Path, err)
		return schemas.Ledger{}
	}
	if ledger == nil {
		return schemas.Ledger{}
	}
	return ledger
}

// Save writes the ledger atomically: marshal to a temp file in the same
// directory, fsync, then rename over the previous version.
func (r *ledgerRepo) Save(ctx context.Context, ledger schemas.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(r.Path)
	tmp, err := os.CreateTemp(dir, ".sync_ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("creating ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.Path)
}
