package namespace

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/jaevor/go-nanoid"
)

// maxIDAttempts bounds the retry loop when a generated id collides.
const maxIDAttempts = 10

// IDGenerator produces candidate node identifiers.
//
// Candidates must use the path alphabet [A-Za-z0-9_-]. Uniqueness is checked
// by the Tree, which retries on collision.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a plain function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewID() string { return f() }

// NewNanoIDGenerator returns a generator of 21 character nanoid identifiers.
func NewNanoIDGenerator() (IDGenerator, error) {
	generate, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	return IDGeneratorFunc(generate), nil
}

// SequentialIDs generates prefix1, prefix2, ... in order.
// Deterministic ids keep test expectations readable.
type SequentialIDs struct {
	Prefix string
	next   atomic.Int64
}

func (s *SequentialIDs) NewID() string {
	return s.Prefix + strconv.FormatInt(s.next.Add(1), 10)
}

// uniqueID draws candidates until one is unused by any live or deleted node.
func (t *Tree) uniqueID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := t.ids.NewID()
		if id == RootID || !idPattern.MatchString(id) {
			continue
		}
		if _, exists := t.nodes[id]; exists {
			continue
		}
		if _, deleted := t.tombstones[id]; deleted {
			continue
		}
		return id, nil
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxIDAttempts)
}
