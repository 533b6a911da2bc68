package drive

import (
	"context"
	"time"

	"github.com/marmos91/dittodrive/pkg/namespace"
)

// Directory is a point-in-time view of one folder.
type Directory struct {
	Folder *namespace.Folder
	Path   namespace.Path

	// Contents lists folders first, then files, each ordered by name
	// ignoring case.
	Contents []namespace.Node
}

// Folders returns the folder children.
func (d *Directory) Folders() []*namespace.Folder {
	var out []*namespace.Folder
	for _, n := range d.Contents {
		if f, ok := n.(*namespace.Folder); ok {
			out = append(out, f)
		}
	}
	return out
}

// Files returns the file children.
func (d *Directory) Files() []*namespace.File {
	var out []*namespace.File
	for _, n := range d.Contents {
		if f, ok := n.(*namespace.File); ok {
			out = append(out, f)
		}
	}
	return out
}

// GetDirectory returns the folder at p and its children.
//
// Trashed children are hidden unless the folder itself is in the trash, in
// which case its whole trashed subtree is shown.
func (s *Service) GetDirectory(ctx context.Context, p namespace.Path) (d *Directory, err error) {
	defer s.observe("GetDirectory", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	folder, err := s.tree.Resolve(p)
	if err != nil {
		return nil, err
	}
	children, err := s.tree.List(p)
	if err != nil {
		return nil, err
	}

	d = &Directory{Folder: folder, Path: p, Contents: children[:0]}
	for _, c := range children {
		if c.Info().Trashed && !folder.Trashed {
			continue
		}
		d.Contents = append(d.Contents, c)
	}
	return d, nil
}

// Lookup returns the node (folder or file) at p.
func (s *Service) Lookup(ctx context.Context, p namespace.Path) (namespace.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Lookup(p)
}

// SearchFileFolder returns the live nodes whose names match query, keyed by
// id, using the service's configured match mode. It never fails; no match
// yields an empty map.
func (s *Service) SearchFileFolder(ctx context.Context, query string) map[string]namespace.Node {
	start := time.Now()

	s.mu.RLock()
	nodes := s.tree.Search(query, s.searchMode)
	s.mu.RUnlock()

	out := make(map[string]namespace.Node, len(nodes))
	for _, n := range nodes {
		out[n.Info().ID] = n
	}
	s.metrics.RecordOperation("SearchFileFolder", time.Since(start), nil)
	return out
}

// SearchResult pairs a matching node with its path.
type SearchResult = namespace.Located

// Search returns the live nodes matching query in the given mode together
// with their paths.
func (s *Service) Search(ctx context.Context, query string, mode namespace.MatchMode) []SearchResult {
	start := time.Now()
	defer func() { s.metrics.RecordOperation("Search", time.Since(start), nil) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := s.tree.Search(query, mode)
	out := make([]SearchResult, 0, len(nodes))
	for _, n := range nodes {
		p, err := s.tree.PathOf(n.Info().ID)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{Node: n, Path: p})
	}
	return out
}

// FindFolders returns the live folders named exactly name (ignoring case)
// with their paths.
func (s *Service) FindFolders(ctx context.Context, name string) []SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFolders(name)
}

func (s *Service) findFolders(name string) []SearchResult {
	folders := s.tree.FindFolders(name)
	out := make([]SearchResult, 0, len(folders))
	for _, f := range folders {
		p, err := s.tree.PathOf(f.ID)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{Node: f, Path: p})
	}
	return out
}

// FolderTree returns the nested outline of live folders, for destination
// pickers.
func (s *Service) FolderTree(ctx context.Context) *namespace.FolderEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.FolderTree()
}

// ListTrash returns the top-level trashed nodes with their paths.
func (s *Service) ListTrash(ctx context.Context) []namespace.Located {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Trashed()
}

// Stats summarizes the namespace.
func (s *Service) Stats(ctx context.Context) namespace.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Stats()
}
