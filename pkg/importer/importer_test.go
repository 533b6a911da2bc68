package importer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittodrive/internal/ratelimiter"
	"github.com/marmos91/dittodrive/pkg/blob"
	blobmemory "github.com/marmos91/dittodrive/pkg/blob/memory"
	"github.com/marmos91/dittodrive/pkg/drive"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = "-100200300"

type fixture struct {
	svc      *drive.Service
	channels *blobmemory.Channels
	dest     namespace.Path
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	svc, err := drive.Open(ctx, memory.New(), drive.Options{
		IDs:     &namespace.SequentialIDs{Prefix: "N"},
		Backend: "memory",
	})
	require.NoError(t, err)

	dest, err := svc.NewFolder(ctx, namespace.RootPath, "Imports")
	require.NoError(t, err)

	return &fixture{svc: svc, channels: blobmemory.New(), dest: dest}
}

// fill puts messages 1..n in the source channel. Ids listed in empty carry
// no media.
func (f *fixture) fill(n int, empty map[int64]bool) {
	f.channels.CreateChannel(source)
	for i := int64(1); i <= int64(n); i++ {
		m := blob.Media{MessageID: i, FileName: fmt.Sprintf("video-%03d.mp4", i), Size: 1000 + i, Duration: 60}
		if empty[i] {
			m = blob.Media{MessageID: i}
		}
		f.channels.Put(source, m)
	}
}

func (f *fixture) files(t *testing.T) []*namespace.File {
	t.Helper()
	dir, err := f.svc.GetDirectory(context.Background(), f.dest)
	require.NoError(t, err)
	return dir.Files()
}

func TestRun_BulkSkipsEmptyMessages(t *testing.T) {
	f := newFixture(t)
	empty := make(map[int64]bool)
	for i := int64(10); i <= 100; i += 10 {
		empty[i] = true
	}
	f.fill(100, empty)

	im := New(f.svc, f.channels, f.channels, Options{})
	report, err := im.Run(context.Background(), Request{
		Channel: source, Start: 1, End: 100, Dest: f.dest, Mode: ModeBulk,
	})
	require.NoError(t, err)

	assert.Equal(t, 90, report.Imported)
	assert.Equal(t, 10, report.Skipped)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 100, report.Total)
	assert.Equal(t, 100, report.Processed())
	assert.False(t, report.Cancelled)
	assert.NotEqual(t, uuid.Nil, report.JobID)

	files := f.files(t)
	require.Len(t, files, 90)
	for _, file := range files {
		assert.False(t, file.Blob.External(), "bulk imports own their content")
	}
	assert.Equal(t, 90, f.channels.Stored())

	skipped := report.Outcomes[9]
	assert.Equal(t, int64(10), skipped.MessageID)
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Equal(t, "no content", skipped.Reason)
}

func TestRun_FastKeepsSourceChannel(t *testing.T) {
	f := newFixture(t)
	f.fill(5, nil)

	im := New(f.svc, f.channels, nil, Options{})
	report, err := im.Run(context.Background(), Request{
		Channel: source, Start: 1, End: 5, Dest: f.dest, Mode: ModeFast,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Imported)

	files := f.files(t)
	require.Len(t, files, 5)
	for _, file := range files {
		assert.Equal(t, source, file.Blob.SourceChannel)
	}
	assert.Equal(t, 0, f.channels.Stored(), "fast imports copy nothing")
	assert.Equal(t, 5, f.svc.Stats(context.Background()).External)
}

func TestRun_DefaultFileName(t *testing.T) {
	f := newFixture(t)
	f.channels.Put(source, blob.Media{MessageID: 7, Size: 10})

	report, err := New(f.svc, f.channels, f.channels, Options{}).Run(context.Background(), Request{
		Channel: source, Start: 7, End: 7, Dest: f.dest,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)
	assert.Equal(t, ModeBulk, report.Mode)
	assert.Equal(t, "file_7", report.Outcomes[0].File.Name)
}

func TestRun_CopyFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.fill(5, nil)
	boom := errors.New("flood wait")
	f.channels.FailCopy(3, boom)

	report, err := New(f.svc, f.channels, f.channels, Options{}).Run(context.Background(), Request{
		Channel: source, Start: 1, End: 5, Dest: f.dest, Mode: ModeBulk,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Imported)
	assert.Equal(t, 1, report.Errors)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, int64(3), failures[0].MessageID)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.Len(t, f.files(t), 4)
}

func TestRun_CancelKeepsPartialProgress(t *testing.T) {
	f := newFixture(t)
	f.fill(50, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	im := New(f.svc, f.channels, f.channels, Options{
		Progress: func(done, total int, last Outcome) {
			if done == 20 {
				cancel()
			}
		},
	})
	report, err := im.Run(ctx, Request{Channel: source, Start: 1, End: 50, Dest: f.dest, Mode: ModeBulk})
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, 20, report.Imported)
	assert.Equal(t, 20, report.Processed())
	assert.Len(t, f.files(t), 20, "committed files survive cancellation")
}

func TestRun_RangeEndingAtMaxID(t *testing.T) {
	f := newFixture(t)
	f.channels.CreateChannel(source)
	f.channels.Put(source, blob.Media{MessageID: math.MaxInt64 - 1, FileName: "a.mp4", Size: 1})
	f.channels.Put(source, blob.Media{MessageID: math.MaxInt64, FileName: "b.mp4", Size: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []int64
	im := New(f.svc, f.channels, nil, Options{
		Progress: func(done, total int, last Outcome) {
			seen = append(seen, last.MessageID)
			if done > total {
				cancel()
			}
		},
	})
	report, err := im.Run(ctx, Request{
		Channel: source, Start: math.MaxInt64 - 2, End: math.MaxInt64, Dest: f.dest, Mode: ModeFast,
	})
	require.NoError(t, err)

	assert.False(t, report.Cancelled)
	assert.Equal(t, 3, report.Processed())
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []int64{math.MaxInt64 - 2, math.MaxInt64 - 1, math.MaxInt64}, seen)
}

func TestRun_Paced(t *testing.T) {
	f := newFixture(t)
	f.fill(3, nil)

	im := New(f.svc, f.channels, f.channels, Options{Limiter: ratelimiter.New(1000, 1)})
	report, err := im.Run(context.Background(), Request{Channel: source, Start: 1, End: 3, Dest: f.dest})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Imported)
}

func TestRun_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	f.fill(3, nil)
	ctx := context.Background()

	trashed, err := f.svc.NewFolder(ctx, namespace.RootPath, "Old")
	require.NoError(t, err)
	require.NoError(t, f.svc.Trash(ctx, trashed))

	im := New(f.svc, f.channels, f.channels, Options{MaxItems: 10})

	tests := []struct {
		name  string
		req   Request
		check func(t *testing.T, err error)
	}{
		{
			name: "inverted range",
			req:  Request{Channel: source, Start: 5, End: 1, Dest: f.dest, Mode: ModeBulk},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
		{
			name: "range too large",
			req:  Request{Channel: source, Start: 1, End: 11, Dest: f.dest, Mode: ModeBulk},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
		{
			name: "unknown mode",
			req:  Request{Channel: source, Start: 1, End: 2, Dest: f.dest, Mode: "turbo"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			},
		},
		{
			name: "missing destination",
			req:  Request{Channel: source, Start: 1, End: 2, Dest: namespace.MustParsePath("/gone"), Mode: ModeBulk},
			check: func(t *testing.T, err error) {
				assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))
			},
		},
		{
			name: "trashed destination",
			req:  Request{Channel: source, Start: 1, End: 2, Dest: trashed, Mode: ModeFast},
			check: func(t *testing.T, err error) {
				assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))
			},
		},
		{
			name: "inaccessible channel",
			req:  Request{Channel: "-1", Start: 1, End: 2, Dest: f.dest, Mode: ModeFast},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, blob.ErrAccessDenied)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := im.Run(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, report)
			tt.check(t, err)
		})
	}

	assert.Empty(t, f.files(t), "rejected requests import nothing")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBulk, m)

	m, err = ParseMode("fast")
	require.NoError(t, err)
	assert.Equal(t, ModeFast, m)

	_, err = ParseMode("slow")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
