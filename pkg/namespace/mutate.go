package namespace

// Rename changes the display name of the node at p.
//
// Folder names are checked against the naming rules and sibling folders;
// file names only need to be non-empty. Renaming never changes any path.
func (t *Tree) Rename(p Path, name string) (Node, error) {
	if p.IsRoot() {
		return nil, invalidArgument("cannot rename the root folder", p.String())
	}
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}

	m := metaOf(n)
	switch n.(type) {
	case *Folder:
		if err := t.rules.ValidateFolderName(name); err != nil {
			return nil, err
		}
		parent := t.nodes[m.ParentID].(*Folder)
		if findSiblingFolder(parent, name, m.ID) != nil {
			return nil, &Error{Code: ErrDuplicateName, Message: "folder already exists", Path: name}
		}
	case *File:
		if err := t.rules.ValidateFileName(name); err != nil {
			return nil, err
		}
	}

	t.index.Rename(m.Name, name, m.ID)
	m.Name = name
	t.touch(m.ID)
	return cloneNode(n), nil
}

// Move reparents the node at src into the folder at dst.
//
// Returns:
//   - Node: Copy of the moved node
//   - error: ErrNotFound if either path does not resolve (dst must be a live
//     folder), ErrInvalidArgument when moving the root or moving a folder
//     into its own subtree, ErrDuplicateName when dst already holds a folder
//     with the same name
func (t *Tree) Move(src, dst Path) (Node, error) {
	if src.IsRoot() {
		return nil, invalidArgument("cannot move the root folder", src.String())
	}
	n, err := t.lookup(src)
	if err != nil {
		return nil, err
	}
	dir, err := t.writableFolder(dst)
	if err != nil {
		return nil, err
	}

	m := metaOf(n)
	if _, isFolder := n.(*Folder); isFolder && t.isWithin(dir, m.ID) {
		return nil, invalidArgument("cannot move a folder into itself", dst.String())
	}
	if m.ParentID == dir.ID {
		return cloneNode(n), nil
	}
	if _, isFolder := n.(*Folder); isFolder && findSiblingFolder(dir, m.Name, m.ID) != nil {
		return nil, &Error{Code: ErrDuplicateName, Message: "folder already exists", Path: m.Name}
	}

	old := t.nodes[m.ParentID].(*Folder)
	delete(old.children, m.ID)
	m.ParentID = dir.ID
	dir.children[m.ID] = n
	t.touch(m.ID)
	return cloneNode(n), nil
}

// isWithin reports whether folder is the node with id or one of its descendants.
func (t *Tree) isWithin(folder *Folder, id string) bool {
	var n Node = folder
	for n != nil {
		m := n.Info()
		if m.ID == id {
			return true
		}
		if m.ParentID == "" {
			return false
		}
		n = t.nodes[m.ParentID]
	}
	return false
}

// Copy duplicates the node at src, recursively for folders, into the folder
// at dst. Every copy receives a fresh id; copied files keep their BlobRef so
// no blob is duplicated.
func (t *Tree) Copy(src, dst Path) (Node, error) {
	if src.IsRoot() {
		return nil, invalidArgument("cannot copy the root folder", src.String())
	}
	n, err := t.lookup(src)
	if err != nil {
		return nil, err
	}
	dir, err := t.writableFolder(dst)
	if err != nil {
		return nil, err
	}

	if folder, isFolder := n.(*Folder); isFolder {
		if t.isWithin(dir, folder.ID) {
			return nil, invalidArgument("cannot copy a folder into itself", dst.String())
		}
		if findSiblingFolder(dir, folder.Name, "") != nil {
			return nil, &Error{Code: ErrDuplicateName, Message: "folder already exists", Path: folder.Name}
		}
	}

	c, err := t.copyInto(n, dir)
	if err != nil {
		return nil, err
	}
	return cloneNode(c), nil
}

func (t *Tree) copyInto(n Node, dir *Folder) (Node, error) {
	id, err := t.uniqueID()
	if err != nil {
		return nil, err
	}
	meta := Meta{ID: id, Name: n.Info().Name, ParentID: dir.ID, CreatedAt: t.now().UTC()}

	switch v := n.(type) {
	case *File:
		c := &File{Meta: meta, Blob: v.Blob, Size: v.Size, Duration: v.Duration}
		t.attach(dir, c)
		return c, nil
	case *Folder:
		c := &Folder{Meta: meta, children: make(map[string]Node)}
		t.attach(dir, c)
		// Snapshot the source children first so the copy never observes itself.
		for _, child := range sortedChildren(v) {
			if _, err := t.copyInto(t.nodes[child.Info().ID], c); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	return nil, invalidArgument("unknown node type", n.Info().ID)
}

// SetTrashed moves the node at p (and its whole subtree) into or out of the
// trash. Restoring is only allowed once the parent is out of the trash.
func (t *Tree) SetTrashed(p Path, trashed bool) (Node, error) {
	if p.IsRoot() {
		return nil, invalidArgument("cannot trash the root folder", p.String())
	}
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}

	m := metaOf(n)
	if !trashed {
		if !m.Trashed {
			return nil, invalidArgument("not in the trash", p.String())
		}
		if t.nodes[m.ParentID].Info().Trashed {
			return nil, invalidArgument("parent folder is in the trash", p.String())
		}
	}

	t.setTrashed(n, trashed)
	return cloneNode(n), nil
}

func (t *Tree) setTrashed(n Node, trashed bool) {
	m := metaOf(n)
	if m.Trashed != trashed {
		m.Trashed = trashed
		t.touch(m.ID)
	}
	if folder, ok := n.(*Folder); ok {
		for _, c := range folder.children {
			t.setTrashed(c, trashed)
		}
	}
}

// Remove permanently deletes the node at p and its subtree.
//
// Removed ids become tombstones and are never reissued.
//
// Returns:
//   - []string: Ids of every removed node
//   - error: ErrNotFound, or ErrInvalidArgument for the root
func (t *Tree) Remove(p Path) ([]string, error) {
	if p.IsRoot() {
		return nil, invalidArgument("cannot remove the root folder", p.String())
	}
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}

	parent := t.nodes[n.Info().ParentID].(*Folder)
	delete(parent.children, n.Info().ID)

	var removed []string
	t.walkNode(n, func(x Node) {
		m := x.Info()
		delete(t.nodes, m.ID)
		delete(t.dirty, m.ID)
		t.index.Remove(m.Name, m.ID)
		t.tombstones[m.ID] = struct{}{}
		removed = append(removed, m.ID)
	})
	t.removed = append(t.removed, removed...)
	return removed, nil
}

func (t *Tree) walkNode(n Node, fn func(Node)) {
	if folder, ok := n.(*Folder); ok {
		t.walk(folder, fn)
		return
	}
	fn(n)
}

// Tombstones returns the number of remembered deleted ids.
func (t *Tree) Tombstones() int { return len(t.tombstones) }
