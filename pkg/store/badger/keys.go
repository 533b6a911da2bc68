package badger

import (
	"fmt"
	"strconv"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so the namespace is spread over prefixed
// keys. Every node is its own entry, which keeps incremental changes small:
// creating a file touches a single key.
//
// Key Namespace Prefixes:
//
// Data Type             Prefix   Key Format          Value Type
// =================================================================
// Node Record           "g"      g<gen>/n:<id>       NodeRecord (JSON)
// Tombstone             "g"      g<gen>/t:<id>       empty
// Schema Version        "m:"     m:version           decimal string
// Generation Pointer    "m:"     m:gen               decimal string
// Root Pointer          "m:"     m:root              root id (bytes)
// Current Folder        "m:"     m:current           CurrentFolder (JSON)
//
// <gen> is a 16-digit hex counter. Save writes a whole snapshot under a new
// generation with a WriteBatch, then switches m:gen in one small transaction
// and deletes the previous generation. Only the generation named by m:gen is
// ever read, so a crash mid-Save leaves the previous snapshot intact and the
// half-written generation is removed by the next Save.
//
// Parent/child relationships are not stored separately: each NodeRecord
// carries its parent id and the tree is relinked in memory on load.
//
// The presence of m:version marks an initialized database. A database
// without it has never been saved and loads as store.ErrNoState.

const (
	prefixGeneration = "g"

	keyVersion    = "m:version"
	keyGeneration = "m:gen"
	keyRoot       = "m:root"
	keyCurrent    = "m:current"
)

func genPrefix(gen uint64) string {
	return fmt.Sprintf("%s%016x/", prefixGeneration, gen)
}

func nodePrefix(gen uint64) string {
	return genPrefix(gen) + "n:"
}

func tombstonePrefix(gen uint64) string {
	return genPrefix(gen) + "t:"
}

func nodeKey(gen uint64, id string) []byte {
	return []byte(nodePrefix(gen) + id)
}

func tombstoneKey(gen uint64, id string) []byte {
	return []byte(tombstonePrefix(gen) + id)
}

// parseGen extracts the generation from a key under prefixGeneration.
func parseGen(key []byte) (uint64, bool) {
	const width = 16
	if len(key) < len(prefixGeneration)+width+1 {
		return 0, false
	}
	gen, err := strconv.ParseUint(string(key[len(prefixGeneration):len(prefixGeneration)+width]), 16, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}
