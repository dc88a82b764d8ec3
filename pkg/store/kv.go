package store

import (
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	ds "github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"
)

// NewDefaultKVStore creates instance of default key-value store under rootDir/dbPath/dbName.
func NewDefaultKVStore(rootDir, dbPath, dbName string) (ds.Batching, error) {
	path := filepath.Join(rootify(rootDir, dbPath), dbName)
	return badger4.NewDatastore(path, nil)
}

// NewDefaultInMemoryKVStore builds a key-value store that works in-memory (without accessing disk).
func NewDefaultInMemoryKVStore() (ds.Batching, error) {
	inMemoryOptions := &badger4.Options{
		GcDiscardRatio: 0.2,
		GcInterval:     15 * time.Minute,
		GcSleep:        10 * time.Second,
		Options:        badger.DefaultOptions("").WithInMemory(true),
	}
	return badger4.NewDatastore("", inMemoryOptions)
}

func rootify(rootDir, dbPath string) string {
	if filepath.IsAbs(dbPath) {
		return dbPath
	}
	return filepath.Join(rootDir, dbPath)
}
