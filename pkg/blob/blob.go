// Package blob defines the collaborators that talk to the external blob store.
//
// The drive namespace never calls the blob store itself: import workers use
// a Source to inspect messages in a foreign channel and a Copier to copy
// them into the drive's own storage channel, then register the resulting
// handles with the drive service.
package blob

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrNoContent is returned for messages that are missing, empty or carry
	// no media. Importers skip such messages.
	ErrNoContent = errors.New("message has no retrievable content")

	// ErrAccessDenied is returned when a channel cannot be read.
	ErrAccessDenied = errors.New("channel is not accessible")
)

// Media describes the content of one message.
type Media struct {
	MessageID int64
	FileName  string
	MimeType  string
	Size      int64
	Duration  int64
}

// Name returns the file name to register, falling back to "file_<id>" for
// media without one.
func (m *Media) Name() string {
	if m.FileName != "" {
		return m.FileName
	}
	return "file_" + strconv.FormatInt(m.MessageID, 10)
}

// Source reads message metadata from a channel.
type Source interface {
	// Message returns the media carried by a message.
	//
	// Returns ErrNoContent if the message does not exist or has no media.
	Message(ctx context.Context, channel string, messageID int64) (*Media, error)
}

// Copier copies content into the drive's own storage channel.
type Copier interface {
	// CopyToStorage copies a message and returns its id in the storage channel.
	CopyToStorage(ctx context.Context, channel string, messageID int64) (int64, error)
}

// AccessChecker is implemented by sources that can verify a channel is
// readable before a batch starts.
type AccessChecker interface {
	CheckAccess(ctx context.Context, channel string) error
}
