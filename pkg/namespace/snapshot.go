package namespace

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// ErrCorruptSnapshot is wrapped by every structural problem found while
// rebuilding a tree from persisted state.
var ErrCorruptSnapshot = errors.New("corrupt namespace snapshot")

// NodeRecord is the flat, format-agnostic persisted form of a Node.
type NodeRecord struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Name          string    `json:"name"`
	ParentID      string    `json:"parent_id,omitempty"`
	MessageID     int64     `json:"message_id,omitempty"`
	SourceChannel string    `json:"source_channel,omitempty"`
	Size          int64     `json:"size,omitempty"`
	Duration      int64     `json:"duration,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Trashed       bool      `json:"trashed,omitempty"`
}

// CurrentFolder is the persisted "current folder" pointer used by front ends
// that operate relative to a selected folder.
type CurrentFolder struct {
	Path Path   `json:"path"`
	Name string `json:"name"`
}

// Snapshot is the complete persisted state of a namespace.
type Snapshot struct {
	Version    int            `json:"version"`
	RootID     string         `json:"root_id"`
	Nodes      []NodeRecord   `json:"nodes"`
	Current    *CurrentFolder `json:"current,omitempty"`
	Tombstones []string       `json:"tombstones,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		Version:    s.Version,
		RootID:     s.RootID,
		Nodes:      append([]NodeRecord(nil), s.Nodes...),
		Tombstones: append([]string(nil), s.Tombstones...),
	}
	if s.Current != nil {
		cur := *s.Current
		c.Current = &cur
	}
	return c
}

// Record converts a node to its persisted form.
func Record(n Node) NodeRecord {
	m := n.Info()
	rec := NodeRecord{
		ID:        m.ID,
		Kind:      n.Kind(),
		Name:      m.Name,
		ParentID:  m.ParentID,
		CreatedAt: m.CreatedAt,
		Trashed:   m.Trashed,
	}
	if f, ok := n.(*File); ok {
		rec.MessageID = f.Blob.MessageID
		rec.SourceChannel = f.Blob.SourceChannel
		rec.Size = f.Size
		rec.Duration = f.Duration
	}
	return rec
}

func nodeFromRecord(rec NodeRecord) (Node, error) {
	meta := Meta{
		ID:        rec.ID,
		Name:      rec.Name,
		ParentID:  rec.ParentID,
		CreatedAt: rec.CreatedAt,
		Trashed:   rec.Trashed,
	}
	switch rec.Kind {
	case KindFolder:
		return &Folder{Meta: meta, children: make(map[string]Node)}, nil
	case KindFile:
		if rec.Size < 0 || rec.Duration < 0 {
			return nil, fmt.Errorf("%w: file %q has negative size or duration", ErrCorruptSnapshot, rec.ID)
		}
		return &File{
			Meta:     meta,
			Blob:     BlobRef{MessageID: rec.MessageID, SourceChannel: rec.SourceChannel},
			Size:     rec.Size,
			Duration: rec.Duration,
		}, nil
	default:
		return nil, fmt.Errorf("%w: node %q has unknown kind %q", ErrCorruptSnapshot, rec.ID, rec.Kind)
	}
}

// Snapshot captures the full tree state. The Current pointer is left for the
// caller to fill in.
func (t *Tree) Snapshot() *Snapshot {
	s := &Snapshot{
		Version: SnapshotVersion,
		RootID:  RootID,
		Nodes:   make([]NodeRecord, 0, len(t.nodes)),
	}
	for _, n := range t.nodes {
		s.Nodes = append(s.Nodes, Record(n))
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })

	for id := range t.tombstones {
		s.Tombstones = append(s.Tombstones, id)
	}
	sort.Strings(s.Tombstones)
	return s
}

// FromSnapshot rebuilds a tree from persisted state.
//
// The snapshot is validated structurally: exactly one root, unique ids,
// every parent present and a folder, every node reachable from the root and
// no duplicate sibling folder names. Any violation is reported as an error
// wrapping ErrCorruptSnapshot.
func FromSnapshot(s *Snapshot, opts ...Option) (*Tree, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	if s.Version < 1 || s.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, s.Version)
	}
	if s.RootID != RootID {
		return nil, fmt.Errorf("%w: unexpected root id %q", ErrCorruptSnapshot, s.RootID)
	}

	t := newEmptyTree(opts...)

	for _, rec := range s.Nodes {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: node without id", ErrCorruptSnapshot)
		}
		if _, dup := t.nodes[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrCorruptSnapshot, rec.ID)
		}
		n, err := nodeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		t.nodes[rec.ID] = n
	}

	root, ok := t.nodes[RootID].(*Folder)
	if !ok {
		return nil, fmt.Errorf("%w: missing root folder", ErrCorruptSnapshot)
	}
	if root.ParentID != "" {
		return nil, fmt.Errorf("%w: root has a parent", ErrCorruptSnapshot)
	}
	t.root = root

	for id, n := range t.nodes {
		if id == RootID {
			continue
		}
		m := metaOf(n)
		parent, ok := t.nodes[m.ParentID].(*Folder)
		if !ok {
			return nil, fmt.Errorf("%w: node %q has missing or non-folder parent %q", ErrCorruptSnapshot, id, m.ParentID)
		}
		if folder, isFolder := n.(*Folder); isFolder {
			if sibling := findSiblingFolder(parent, folder.Name, ""); sibling != nil {
				return nil, fmt.Errorf("%w: duplicate folder name %q under %q", ErrCorruptSnapshot, folder.Name, parent.ID)
			}
		}
		parent.children[id] = n
	}

	// Orphaned cycles have parents but are unreachable from the root.
	reached := 0
	t.walk(t.root, func(Node) { reached++ })
	if reached != len(t.nodes) {
		return nil, fmt.Errorf("%w: %d nodes unreachable from root", ErrCorruptSnapshot, len(t.nodes)-reached)
	}

	for id, n := range t.nodes {
		if id != RootID {
			t.index.Add(n.Info().Name, id)
		}
	}
	for _, id := range s.Tombstones {
		t.tombstones[id] = struct{}{}
	}

	return t, nil
}
