// Package importer registers ranges of channel messages as drive files.
//
// Two modes exist:
//   - bulk: every message is copied into the drive's storage channel and the
//     copy is registered with NewFile; the drive owns the content.
//   - fast: messages are registered in place with NewFastImportFile; content
//     stays in the source channel and remains readable only while that
//     channel does.
//
// Each message is its own drive mutation. The loop paces itself between
// items and never holds the drive's mutation section for the whole batch,
// so interactive operations keep running during a large import.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/internal/ratelimiter"
	"github.com/marmos91/dittodrive/pkg/blob"
	"github.com/marmos91/dittodrive/pkg/drive"
	"github.com/marmos91/dittodrive/pkg/metrics"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// DefaultMaxItems caps the number of messages in one request.
const DefaultMaxItems = 5000

// ErrInvalidRequest is wrapped by every request-level validation failure.
var ErrInvalidRequest = errors.New("invalid import request")

// Mode selects how content is registered.
type Mode string

const (
	ModeBulk Mode = "bulk"
	ModeFast Mode = "fast"
)

// ParseMode accepts "bulk" and "fast" (and "" for bulk).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBulk:
		return ModeBulk, nil
	case ModeFast:
		return ModeFast, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}

// Drive is the subset of the drive service the importer writes to.
// *drive.Service implements it.
type Drive interface {
	GetDirectory(ctx context.Context, p namespace.Path) (*drive.Directory, error)
	NewFile(ctx context.Context, parent namespace.Path, name string, messageID, size, duration int64) (*namespace.File, error)
	NewFastImportFile(ctx context.Context, parent namespace.Path, name string, messageID, size, duration int64, sourceChannel string) (*namespace.File, error)
}

// Request describes one import job.
type Request struct {
	// Channel is the source channel identifier
	Channel string

	// Start and End bound the message id range, both inclusive
	Start int64
	End   int64

	// Dest is the destination folder
	Dest namespace.Path

	Mode Mode
}

// Len returns the number of message ids in the range.
func (r Request) Len() int64 { return r.End - r.Start + 1 }

// Options configures an Importer.
type Options struct {
	// MaxItems caps Request.Len(). Defaults to DefaultMaxItems.
	MaxItems int

	// Limiter paces items. Defaults to an unlimited limiter that only yields.
	Limiter *ratelimiter.RateLimiter

	// Metrics is optional.
	Metrics metrics.ImportMetrics

	// Progress, if set, is called after every item from the job goroutine.
	Progress func(done, total int, last Outcome)
}

// Importer runs import jobs against one drive.
//
// Thread Safety: Run may be called concurrently; each call is an independent
// job. Jobs sharing Options.Limiter share its rate.
type Importer struct {
	drive   Drive
	source  blob.Source
	copier  blob.Copier
	opts    Options
	metrics metrics.ImportMetrics
}

// New creates an Importer. copier may be nil when only fast imports are run.
func New(d Drive, source blob.Source, copier blob.Copier, opts Options) *Importer {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimiter.New(0, 0)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NoopImportMetrics{}
	}
	return &Importer{drive: d, source: source, copier: copier, opts: opts, metrics: m}
}

// validate rejects requests that must fail before any item is processed.
func (im *Importer) validate(ctx context.Context, req Request) error {
	if req.Channel == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalidRequest)
	}
	if req.Start <= 0 || req.End < req.Start {
		return fmt.Errorf("%w: bad message range %d-%d", ErrInvalidRequest, req.Start, req.End)
	}
	if req.Len() > int64(im.opts.MaxItems) {
		return fmt.Errorf("%w: range of %d messages exceeds the limit of %d",
			ErrInvalidRequest, req.Len(), im.opts.MaxItems)
	}
	if req.Mode != ModeBulk && req.Mode != ModeFast {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Mode == ModeBulk && im.copier == nil {
		return fmt.Errorf("%w: bulk import needs a storage copier", ErrInvalidRequest)
	}

	dir, err := im.drive.GetDirectory(ctx, req.Dest)
	if err != nil {
		return err
	}
	if dir.Folder.Trashed {
		return &namespace.Error{Code: namespace.ErrNotFound, Message: "folder is in the trash", Path: req.Dest.String()}
	}

	if checker, ok := im.source.(blob.AccessChecker); ok {
		if err := checker.CheckAccess(ctx, req.Channel); err != nil {
			return err
		}
	}
	return nil
}

// Run imports every message in the request range into req.Dest.
//
// Per-message problems never abort the job: messages without content are
// skipped, other failures are recorded and the loop moves on. Cancelling ctx
// stops the job between items; files registered so far stay in the drive
// and the partial report is returned with Cancelled set and a nil error.
//
// Returns an error only when the request itself is rejected.
func (im *Importer) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Mode == "" {
		req.Mode = ModeBulk
	}
	if err := im.validate(ctx, req); err != nil {
		return nil, err
	}

	report := newReport(req)
	mode := string(req.Mode)
	total := int(req.Len())

	im.metrics.JobStarted(mode)
	defer im.metrics.JobFinished(mode)

	logger.Info("Import %s started: %s messages %d-%d from %s into %s",
		report.JobID, mode, req.Start, req.End, req.Channel, req.Dest)

	for i := int64(0); i < req.Len(); i++ {
		id := req.Start + i
		if err := im.opts.Limiter.Pace(ctx); err != nil {
			report.Cancelled = true
			break
		}

		out := im.importOne(ctx, req, id)
		if out.Status == StatusCancelled {
			report.Cancelled = true
			break
		}
		report.add(out)
		im.metrics.RecordItem(mode, out.Status.String())

		if im.opts.Progress != nil {
			im.opts.Progress(len(report.Outcomes), total, out)
		}
	}

	report.Finished = time.Now()
	im.metrics.ObserveJob(mode, report.Finished.Sub(report.Started), report.Cancelled)

	logger.Info("Import %s finished: imported=%d skipped=%d errors=%d cancelled=%t",
		report.JobID, report.Imported, report.Skipped, report.Errors, report.Cancelled)
	return report, nil
}

// importOne processes a single message.
func (im *Importer) importOne(ctx context.Context, req Request, id int64) Outcome {
	out := Outcome{MessageID: id}

	media, err := im.source.Message(ctx, req.Channel, id)
	if err != nil {
		return im.classify(ctx, out, err)
	}

	// Once content is in hand the registration completes even if the job is
	// cancelled meanwhile, so no message is left copied but unregistered.
	commitCtx := context.WithoutCancel(ctx)

	var file *namespace.File
	switch req.Mode {
	case ModeFast:
		file, err = im.drive.NewFastImportFile(commitCtx, req.Dest, media.Name(),
			media.MessageID, media.Size, media.Duration, req.Channel)
	default:
		var stored int64
		stored, err = im.copier.CopyToStorage(commitCtx, req.Channel, id)
		if err != nil {
			return im.classify(ctx, out, err)
		}
		file, err = im.drive.NewFile(commitCtx, req.Dest, media.Name(), stored, media.Size, media.Duration)
	}
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		logger.Warn("Import of message %d from %s failed: %v", id, req.Channel, err)
		return out
	}

	out.Status = StatusImported
	out.File = file
	logger.Debug("Imported message %d from %s as %q", id, req.Channel, file.Name)
	return out
}

func (im *Importer) classify(ctx context.Context, out Outcome, err error) Outcome {
	switch {
	case errors.Is(err, blob.ErrNoContent):
		out.Status = StatusSkipped
		out.Reason = "no content"
	case ctx.Err() != nil:
		out.Status = StatusCancelled
	default:
		out.Status = StatusFailed
		out.Err = err
		logger.Warn("Import of message %d failed: %v", out.MessageID, err)
	}
	return out
}
