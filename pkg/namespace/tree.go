package namespace

import (
	"sort"
	"time"
)

// Tree is the in-memory namespace: a rooted tree of folders and files with a
// name index kept in step with every mutation.
//
// Structural invariants maintained by every method:
//   - ids are unique for the lifetime of the namespace (deleted ids are
//     remembered as tombstones and never reissued)
//   - every node except the root has exactly one parent folder, and the
//     parent chain of every node ends at the root
//   - no two folders in the same parent have names that are equal ignoring case
//   - a file's BlobRef never changes after creation
//
// Thread Safety:
// Tree is NOT safe for concurrent use. The owning service serializes
// mutations and guards reads with a read-write lock. Every node handed to a
// caller is a detached copy, so results stay valid after the lock is
// released.
//
// Change Tracking:
// Mutated and removed ids accumulate until Drain is called, which lets the
// persistence layer apply incremental changes instead of rewriting the whole
// snapshot.
type Tree struct {
	root       *Folder
	nodes      map[string]Node
	tombstones map[string]struct{}
	index      *Index

	ids   IDGenerator
	rules *NameRules
	now   func() time.Time

	dirty   map[string]struct{}
	removed []string
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator sets the source of candidate ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tree) { t.ids = g }
}

// WithNameRules sets the name validation rules.
func WithNameRules(r *NameRules) Option {
	return func(t *Tree) { t.rules = r }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

func newEmptyTree(opts ...Option) *Tree {
	t := &Tree{
		nodes:      make(map[string]Node),
		tombstones: make(map[string]struct{}),
		index:      NewIndex(),
		rules:      DefaultNameRules(),
		now:        time.Now,
		dirty:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ids == nil {
		g, err := NewNanoIDGenerator()
		if err != nil {
			panic(err)
		}
		t.ids = g
	}
	return t
}

// NewTree bootstraps a tree holding only an empty root folder.
func NewTree(opts ...Option) *Tree {
	t := newEmptyTree(opts...)
	t.root = &Folder{
		Meta:     Meta{ID: RootID, Name: RootName, CreatedAt: t.now().UTC()},
		children: make(map[string]Node),
	}
	t.nodes[RootID] = t.root
	t.touch(RootID)
	return t
}

// ============================================================================
// Resolution
// ============================================================================

// lookup walks p from the root. The terminal segment may be a file; every
// other segment must be a folder that is a child of the previous one.
func (t *Tree) lookup(p Path) (Node, error) {
	ids := p.IDs()
	cur := t.root
	for i, id := range ids {
		child, ok := cur.children[id]
		if !ok {
			return nil, notFound("no such entry", p.String())
		}
		if i == len(ids)-1 {
			return child, nil
		}
		folder, ok := child.(*Folder)
		if !ok {
			return nil, notFound("path traverses a file", p.String())
		}
		cur = folder
	}
	return t.root, nil
}

func (t *Tree) resolveFolder(p Path) (*Folder, error) {
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}
	folder, ok := n.(*Folder)
	if !ok {
		return nil, notFound("not a folder", p.String())
	}
	return folder, nil
}

// writableFolder resolves a folder that can receive new children.
func (t *Tree) writableFolder(p Path) (*Folder, error) {
	folder, err := t.resolveFolder(p)
	if err != nil {
		return nil, err
	}
	if folder.Trashed {
		return nil, notFound("folder is in the trash", p.String())
	}
	return folder, nil
}

// Resolve returns a copy of the folder addressed by p.
func (t *Tree) Resolve(p Path) (*Folder, error) {
	folder, err := t.resolveFolder(p)
	if err != nil {
		return nil, err
	}
	return folder.clone(), nil
}

// Lookup returns a copy of the node (folder or file) addressed by p.
func (t *Tree) Lookup(p Path) (Node, error) {
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}
	return cloneNode(n), nil
}

// Get returns a copy of the node with the given id.
func (t *Tree) Get(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneNode(n), true
}

// PathOf returns the path of the node with the given id.
func (t *Tree) PathOf(id string) (Path, error) {
	n, ok := t.nodes[id]
	if !ok {
		return Path{}, notFound("no such node", id)
	}

	var chain []string
	for n != t.root {
		m := metaOf(n)
		chain = append(chain, m.ID)
		n = t.nodes[m.ParentID]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return EncodePath(chain...)
}

// List returns copies of the children of the folder addressed by p, folders
// first, then by name ignoring case.
func (t *Tree) List(p Path) ([]Node, error) {
	folder, err := t.resolveFolder(p)
	if err != nil {
		return nil, err
	}
	return sortedChildren(folder), nil
}

func sortedChildren(folder *Folder) []Node {
	out := make([]Node, 0, len(folder.children))
	for _, c := range folder.children {
		out = append(out, cloneNode(c))
	}
	sortNodes(out)
	return out
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Kind() != b.Kind() {
			return a.Kind() == KindFolder
		}
		an, bn := foldName(a.Info().Name), foldName(b.Info().Name)
		if an != bn {
			return an < bn
		}
		return a.Info().ID < b.Info().ID
	})
}

// ============================================================================
// Creation
// ============================================================================

// InsertFolder creates a folder named name inside the folder at parent.
//
// Returns:
//   - *Folder: Copy of the new folder
//   - error: ErrNotFound if parent does not resolve to a live folder,
//     ErrInvalidName if the name breaks the naming rules,
//     ErrDuplicateName if a sibling folder has the same name ignoring case
func (t *Tree) InsertFolder(parent Path, name string) (*Folder, error) {
	dir, err := t.writableFolder(parent)
	if err != nil {
		return nil, err
	}
	if err := t.rules.ValidateFolderName(name); err != nil {
		return nil, err
	}
	if findSiblingFolder(dir, name, "") != nil {
		return nil, &Error{Code: ErrDuplicateName, Message: "folder already exists", Path: name}
	}

	id, err := t.uniqueID()
	if err != nil {
		return nil, err
	}

	folder := &Folder{
		Meta:     Meta{ID: id, Name: name, ParentID: dir.ID, CreatedAt: t.now().UTC()},
		children: make(map[string]Node),
	}
	t.attach(dir, folder)
	return folder.clone(), nil
}

// InsertFile creates a file entry inside the folder at parent.
//
// File names are not required to be unique among siblings.
func (t *Tree) InsertFile(parent Path, name string, blob BlobRef, size, duration int64) (*File, error) {
	dir, err := t.writableFolder(parent)
	if err != nil {
		return nil, err
	}
	if err := t.rules.ValidateFileName(name); err != nil {
		return nil, err
	}
	if size < 0 || duration < 0 {
		return nil, invalidArgument("size and duration must not be negative", name)
	}

	id, err := t.uniqueID()
	if err != nil {
		return nil, err
	}

	file := &File{
		Meta:     Meta{ID: id, Name: name, ParentID: dir.ID, CreatedAt: t.now().UTC()},
		Blob:     blob,
		Size:     size,
		Duration: duration,
	}
	t.attach(dir, file)
	return file.clone(), nil
}

// ChildFolder returns a copy of the folder named name (ignoring case) inside
// the folder at parent, trashed or not.
func (t *Tree) ChildFolder(parent Path, name string) (*Folder, bool) {
	dir, err := t.resolveFolder(parent)
	if err != nil {
		return nil, false
	}
	f := findSiblingFolder(dir, name, "")
	if f == nil {
		return nil, false
	}
	return f.clone(), true
}

// findSiblingFolder returns the child folder of dir named name (ignoring
// case), skipping the node with id except.
func findSiblingFolder(dir *Folder, name, except string) *Folder {
	key := foldName(name)
	for id, c := range dir.children {
		if id == except {
			continue
		}
		if f, ok := c.(*Folder); ok && foldName(f.Name) == key {
			return f
		}
	}
	return nil
}

func (t *Tree) attach(dir *Folder, n Node) {
	m := metaOf(n)
	m.ParentID = dir.ID
	dir.children[m.ID] = n
	t.nodes[m.ID] = n
	t.index.Add(m.Name, m.ID)
	t.touch(m.ID)
}

// ============================================================================
// Queries
// ============================================================================

// Search returns copies of the live nodes whose names match query.
//
// Trashed nodes and the root are never returned.
func (t *Tree) Search(query string, mode MatchMode) []Node {
	ids := t.index.Search(query, mode)
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok || n.Info().Trashed {
			continue
		}
		out = append(out, cloneNode(n))
	}
	return out
}

// FindFolders returns the live folders named exactly name (ignoring case).
func (t *Tree) FindFolders(name string) []*Folder {
	var out []*Folder
	for _, n := range t.Search(name, MatchExact) {
		if f, ok := n.(*Folder); ok {
			out = append(out, f)
		}
	}
	return out
}

// FolderEntry is one folder of the nested folder outline.
type FolderEntry struct {
	Folder   *Folder
	Path     Path
	Children []*FolderEntry
}

// FolderTree returns the outline of live folders starting at the root.
func (t *Tree) FolderTree() *FolderEntry {
	return t.folderEntry(t.root, RootPath)
}

func (t *Tree) folderEntry(folder *Folder, p Path) *FolderEntry {
	entry := &FolderEntry{Folder: folder.clone(), Path: p}
	for _, c := range sortedChildren(folder) {
		sub, ok := c.(*Folder)
		if !ok || sub.Trashed {
			continue
		}
		entry.Children = append(entry.Children, t.folderEntry(t.nodes[sub.ID].(*Folder), p.Child(sub.ID)))
	}
	return entry
}

// Located pairs a node copy with its path.
type Located struct {
	Node Node
	Path Path
}

// Trashed returns the top-level trashed nodes: those in the trash whose
// parent is not. Descendants of a trashed folder are implied.
func (t *Tree) Trashed() []Located {
	var nodes []Node
	for _, n := range t.nodes {
		m := n.Info()
		if !m.Trashed {
			continue
		}
		if parent := t.nodes[m.ParentID]; parent != nil && parent.Info().Trashed {
			continue
		}
		nodes = append(nodes, cloneNode(n))
	}
	sortNodes(nodes)

	out := make([]Located, 0, len(nodes))
	for _, n := range nodes {
		p, _ := t.PathOf(n.Info().ID)
		out = append(out, Located{Node: n, Path: p})
	}
	return out
}

// Stats summarizes the tree contents.
type Stats struct {
	Folders    int
	Files      int
	Trashed    int
	TotalBytes int64
	External   int
}

// Stats counts nodes. The root is not counted as a folder.
func (t *Tree) Stats() Stats {
	var s Stats
	for id, n := range t.nodes {
		if id == RootID {
			continue
		}
		if n.Info().Trashed {
			s.Trashed++
		}
		switch v := n.(type) {
		case *Folder:
			s.Folders++
		case *File:
			s.Files++
			s.TotalBytes += v.Size
			if v.Blob.External() {
				s.External++
			}
		}
	}
	return s
}

// Len returns the number of nodes including the root.
func (t *Tree) Len() int { return len(t.nodes) }

// Walk visits copies of every node depth-first from the root.
func (t *Tree) Walk(fn func(Node)) {
	t.walk(t.root, func(n Node) { fn(cloneNode(n)) })
}

func (t *Tree) walk(folder *Folder, fn func(Node)) {
	fn(folder)
	for _, c := range folder.children {
		if sub, ok := c.(*Folder); ok {
			t.walk(sub, fn)
			continue
		}
		fn(c)
	}
}

// ============================================================================
// Change Tracking
// ============================================================================

func (t *Tree) touch(id string) {
	t.dirty[id] = struct{}{}
}

// Drain returns the records changed and the ids removed since the previous
// call, and resets the change set.
func (t *Tree) Drain() (upserts []NodeRecord, deletes []string) {
	for id := range t.dirty {
		if n, ok := t.nodes[id]; ok {
			upserts = append(upserts, Record(n))
		}
	}
	sort.Slice(upserts, func(i, j int) bool { return upserts[i].ID < upserts[j].ID })
	deletes = t.removed

	t.dirty = make(map[string]struct{})
	t.removed = nil
	return upserts, deletes
}
