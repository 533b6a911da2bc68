package drive

import (
	"context"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// Rename changes the display name of the node at p. Paths are unaffected.
func (s *Service) Rename(ctx context.Context, p namespace.Path, name string) (n namespace.Node, err error) {
	defer s.observe("Rename", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err = s.tree.Rename(p, name)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, s.refreshCurrent()); err != nil {
		return n, err
	}
	return n, nil
}

// Move reparents the node at src into the folder at dst and returns its new
// path.
//
// Moving a folder into itself or one of its descendants fails with
// ErrInvalidArgument.
func (s *Service) Move(ctx context.Context, src, dst namespace.Path) (p namespace.Path, err error) {
	defer s.observe("Move", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.tree.Move(src, dst)
	if err != nil {
		return namespace.Path{}, err
	}
	p = dst.Child(n.Info().ID)

	if err := s.commit(ctx, s.refreshCurrent()); err != nil {
		return p, err
	}
	logger.Debug("Moved %s to %s", src, p)
	return p, nil
}

// Copy duplicates the node at src (deeply, for folders) into the folder at
// dst and returns the path of the copy. Copied files share the original's
// blob reference.
func (s *Service) Copy(ctx context.Context, src, dst namespace.Path) (p namespace.Path, err error) {
	defer s.observe("Copy", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.tree.Copy(src, dst)
	if err != nil {
		return namespace.Path{}, err
	}
	p = dst.Child(n.Info().ID)

	if err := s.commit(ctx, false); err != nil {
		return p, err
	}
	return p, nil
}

// Trash moves the node at p and its subtree into the trash.
func (s *Service) Trash(ctx context.Context, p namespace.Path) (err error) {
	defer s.observe("Trash", time.Now(), &err)
	return s.setTrashed(ctx, p, true)
}

// Restore takes the node at p and its subtree out of the trash. The parent
// folder must not be trashed, and a restored folder must not clash with a
// live sibling folder name.
func (s *Service) Restore(ctx context.Context, p namespace.Path) (err error) {
	defer s.observe("Restore", time.Now(), &err)
	return s.setTrashed(ctx, p, false)
}

func (s *Service) setTrashed(ctx context.Context, p namespace.Path, trashed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tree.SetTrashed(p, trashed); err != nil {
		return err
	}
	return s.commit(ctx, false)
}

// Delete permanently removes the node at p and its subtree, returning the
// number of removed nodes. Removed ids are never reissued.
func (s *Service) Delete(ctx context.Context, p namespace.Path) (removed int, err error) {
	defer s.observe("Delete", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.tree.Remove(p)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, s.refreshCurrent()); err != nil {
		return len(ids), err
	}

	logger.Debug("Deleted %s (%d nodes)", p, len(ids))
	return len(ids), nil
}
