package drive

import (
	"context"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// The current folder is the folder uploads land in by default. It is
// persisted with the namespace so it survives restarts, and is tracked by
// the folder's id: renames and moves update the pointer, deletion clears it.

// SetCurrentFolder makes the live folder at p the current folder.
func (s *Service) SetCurrentFolder(ctx context.Context, p namespace.Path) (cur namespace.CurrentFolder, err error) {
	defer s.observe("SetCurrentFolder", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.tree.Resolve(p)
	if err != nil {
		return namespace.CurrentFolder{}, err
	}
	if folder.Trashed {
		return namespace.CurrentFolder{}, &namespace.Error{
			Code:    namespace.ErrNotFound,
			Message: "folder is in the trash",
			Path:    p.String(),
		}
	}

	s.current = &namespace.CurrentFolder{Path: p, Name: folder.Name}
	if err := s.commit(ctx, true); err != nil {
		return *s.current, err
	}
	return *s.current, nil
}

// CurrentFolder returns the current folder, if one is set and still live.
func (s *Service) CurrentFolder(ctx context.Context) (namespace.CurrentFolder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return namespace.CurrentFolder{}, false
	}
	folder, err := s.tree.Resolve(s.current.Path)
	if err != nil || folder.Trashed {
		return namespace.CurrentFolder{}, false
	}
	return *s.current, true
}

// EnsureCurrentFolder returns the current folder, choosing one when the
// persisted pointer is missing or no longer live.
//
// The replacement is the folder named defaultName closest to the root (ties
// broken by id). When no such folder is live, a trashed one directly under
// the root is restored, and failing that one is created under the root.
func (s *Service) EnsureCurrentFolder(ctx context.Context, defaultName string) (cur namespace.CurrentFolder, err error) {
	defer s.observe("EnsureCurrentFolder", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if folder, err := s.tree.Resolve(s.current.Path); err == nil && !folder.Trashed {
			return *s.current, nil
		}
		logger.Warn("Current folder %s is gone, picking %q", s.current.Path, defaultName)
	}

	var chosen *namespace.CurrentFolder
	for _, match := range s.findFolders(defaultName) {
		if chosen == nil || match.Path.Depth() < chosen.Path.Depth() {
			chosen = &namespace.CurrentFolder{Path: match.Path, Name: match.Node.Info().Name}
		}
	}

	if chosen == nil {
		// A trashed top-level folder still holds the name, so it is brought
		// back instead of creating a sibling.
		if folder, ok := s.tree.ChildFolder(namespace.RootPath, defaultName); ok {
			p := namespace.RootPath.Child(folder.ID)
			if _, err := s.tree.SetTrashed(p, false); err != nil {
				return namespace.CurrentFolder{}, err
			}
			chosen = &namespace.CurrentFolder{Path: p, Name: folder.Name}
			logger.Info("Restored default folder %q at %s from the trash", folder.Name, p)
		}
	}

	if chosen == nil {
		folder, err := s.tree.InsertFolder(namespace.RootPath, defaultName)
		if err != nil {
			return namespace.CurrentFolder{}, err
		}
		chosen = &namespace.CurrentFolder{Path: namespace.RootPath.Child(folder.ID), Name: folder.Name}
		logger.Info("Created default folder %q at %s", defaultName, chosen.Path)
	}

	s.current = chosen
	if err := s.commit(ctx, true); err != nil {
		return *chosen, err
	}
	return *chosen, nil
}

// refreshCurrent re-derives the current pointer from its folder id after a
// structural change. Reports whether the pointer changed. Callers hold the
// write lock.
func (s *Service) refreshCurrent() bool {
	if s.current == nil {
		return false
	}

	id := s.current.Path.Last()
	n, ok := s.tree.Get(id)
	if !ok {
		s.current = nil
		return true
	}
	p, err := s.tree.PathOf(id)
	if err != nil {
		s.current = nil
		return true
	}
	if p == s.current.Path && n.Info().Name == s.current.Name {
		return false
	}
	s.current = &namespace.CurrentFolder{Path: p, Name: n.Info().Name}
	return true
}
