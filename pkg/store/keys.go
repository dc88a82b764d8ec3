package store

import (
	"path"
	"strconv"
	"strings"

	"github.com/movementlabsxyz/da-sequencer/types"
)

const (
	// SyncedHeightKey is both the column and the key of the synced height.
	// Full key: /synced_height/synced_height
	SyncedHeightKey = "synced_height"

	// DigestedBlobsKey is the column mapping a block height to the DA height
	// where its digest was published.
	// Full keys are like: /digested_blobs/<block_height>
	DigestedBlobsKey = "digested_blobs"

	blocksPrefix       = "blocks"
	blockHeightsPrefix = "block_heights"
	metaPrefix         = "meta"

	heightKey        = "height"
	schemaVersionKey = "schema_version"
)

// GenerateKey joins fields into a datastore key.
func GenerateKey(fields []string) string {
	key := "/" + strings.Join(fields, "/")
	return path.Clean(key)
}

func getSyncedHeightKey() string {
	return GenerateKey([]string{SyncedHeightKey, SyncedHeightKey})
}

func getBlockKey(height uint64) string {
	return GenerateKey([]string{blocksPrefix, strconv.FormatUint(height, 10)})
}

func getBlockHeightKey(id types.ID) string {
	return GenerateKey([]string{blockHeightsPrefix, id.String()})
}

func getDigestedBlobKey(height uint64) string {
	return GenerateKey([]string{DigestedBlobsKey, strconv.FormatUint(height, 10)})
}

func getHeightKey() string {
	return GenerateKey([]string{metaPrefix, heightKey})
}

func getSchemaVersionKey() string {
	return GenerateKey([]string{metaPrefix, schemaVersionKey})
}
