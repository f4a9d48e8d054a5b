package core

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/internal/infra/persistence/postgres"
	"lineagecore/internal/infra/persistence/sqlite"
)

// StorageDriver names a PersistentStore backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
)

// ErrUnknownStorageDriver is returned for a LINEAGECORE_STORAGE_DRIVER value
// with no registered backend.
var ErrUnknownStorageDriver = errors.New("unknown storage driver")

var storageOpeners = map[StorageDriver]func(*RulesEngine) (PersistentStore, error){
	StorageMemory: func(engine *RulesEngine) (PersistentStore, error) {
		return memory.NewStore(engine), nil
	},
	StorageSQLite: func(engine *RulesEngine) (PersistentStore, error) {
		return sqlite.NewStore(os.Getenv("LINEAGECORE_SQLITE_PATH"), engine)
	},
	StoragePostgres: func(engine *RulesEngine) (PersistentStore, error) {
		return postgres.NewStore(os.Getenv("LINEAGECORE_POSTGRES_DSN"), engine)
	},
}

// OpenPersistentStore opens the backend named by LINEAGECORE_STORAGE_DRIVER,
// sqlite when unset. The sqlite file comes from LINEAGECORE_SQLITE_PATH and
// the Postgres connection from LINEAGECORE_POSTGRES_DSN; both fall back to
// the backend's own default.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(os.Getenv("LINEAGECORE_STORAGE_DRIVER"))))
	if driver == "" {
		driver = StorageSQLite
	}
	open, ok := storageOpeners[driver]
	if !ok {
		known := make([]string, 0, len(storageOpeners))
		for d := range storageOpeners {
			known = append(known, string(d))
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownStorageDriver, driver, strings.Join(known, ", "))
	}
	store, err := open(engine)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}
