package drive

import (
	"context"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// NewFolder creates a folder named name inside the folder at parent and
// returns the new folder's path.
//
// Calling it twice with the same name (ignoring case) fails the second time
// with ErrDuplicateName; collaborators rely on this to detect existing
// folders.
//
// Returns:
//   - namespace.Path: Path of the new folder
//   - error: ErrNotFound, ErrInvalidName, ErrDuplicateName, or a
//     *store.PersistenceError when the change could not be made durable
func (s *Service) NewFolder(ctx context.Context, parent namespace.Path, name string) (p namespace.Path, err error) {
	defer s.observe("NewFolder", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	folder, err := s.tree.InsertFolder(parent, name)
	if err != nil {
		return namespace.Path{}, err
	}
	p = parent.Child(folder.ID)

	if err := s.commit(ctx, false); err != nil {
		return p, err
	}

	logger.Debug("Created folder %q at %s", name, p)
	return p, nil
}

// NewFile registers a file whose content already lives in the drive's own
// storage channel under messageID.
//
// File names need not be unique among siblings.
func (s *Service) NewFile(ctx context.Context, parent namespace.Path, name string, messageID, size, duration int64) (*namespace.File, error) {
	return s.insertFile(ctx, "NewFile", parent, name, namespace.BlobRef{MessageID: messageID}, size, duration)
}

// NewFastImportFile registers a file whose content stays in a foreign
// channel. The drive does not own that content; the file stays readable only
// while sourceChannel remains accessible.
func (s *Service) NewFastImportFile(ctx context.Context, parent namespace.Path, name string, messageID, size, duration int64, sourceChannel string) (*namespace.File, error) {
	if sourceChannel == "" {
		return nil, &namespace.Error{
			Code:    namespace.ErrInvalidArgument,
			Message: "fast import requires a source channel",
			Path:    parent.String(),
		}
	}
	blob := namespace.BlobRef{MessageID: messageID, SourceChannel: sourceChannel}
	return s.insertFile(ctx, "NewFastImportFile", parent, name, blob, size, duration)
}

func (s *Service) insertFile(ctx context.Context, op string, parent namespace.Path, name string, blob namespace.BlobRef, size, duration int64) (f *namespace.File, err error) {
	defer s.observe(op, time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err = s.tree.InsertFile(parent, name, blob, size, duration)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, false); err != nil {
		return f, err
	}
	return f, nil
}
