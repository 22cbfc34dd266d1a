package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// archiveLockTTL bounds how long one instance may hold the daily archive
// lock; a crashed holder frees it by expiry.
const archiveLockTTL = 10 * time.Minute

// Narrow store surfaces the archiver needs: time-ranged reads plus the prune
// that follows a verified upload.

// SignalArchiveStore reads and prunes aged signals.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionArchiveStore reads and prunes aged closed positions.
type PositionArchiveStore interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveWriter uploads archive payloads. Satisfied by *Writer.
type ArchiveWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ArchiveVerifier confirms an upload landed before the source rows are
// pruned. Satisfied by *Reader.
type ArchiveVerifier interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver rolls aged rows out of the primary store each midnight UTC:
// closed positions and signals are serialized to JSONL, uploaded, verified,
// and only then pruned. An unverified upload leaves the rows in place for
// the next run.
type Archiver struct {
	log       *slog.Logger
	writer    ArchiveWriter
	verify    ArchiveVerifier
	signals   SignalArchiveStore
	positions PositionArchiveStore
	locks     domain.LockManager // nil when running single-instance

	now func() time.Time
}

// NewArchiver wires the archive cycle. locks may be nil; every instance then
// archives independently.
func NewArchiver(
	logger *slog.Logger,
	writer ArchiveWriter,
	verify ArchiveVerifier,
	signals SignalArchiveStore,
	positions PositionArchiveStore,
	locks domain.LockManager,
) *Archiver {
	return &Archiver{
		log:       logger.With(slog.String("component", "archiver")),
		writer:    writer,
		verify:    verify,
		signals:   signals,
		positions: positions,
		locks:     locks,
		now:       time.Now,
	}
}

// Run archives at every midnight UTC until the context is cancelled. A
// failed cycle is retried at the next midnight; the aged rows just wait.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		next := nextMidnightUTC(a.now())
		timer := time.NewTimer(next.Sub(a.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.ArchiveDay(ctx, next); err != nil {
				a.log.WarnContext(ctx, "archive cycle failed",
					slog.Time("cutoff", next),
					slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveDay archives and prunes everything strictly before cutoff. When a
// lock manager is set, the day's lock serialises runs across instances; a
// held lock means another instance took the cycle.
func (a *Archiver) ArchiveDay(ctx context.Context, cutoff time.Time) error {
	if a.locks != nil {
		key := "archive:" + cutoff.UTC().Format("2006-01-02")
		unlock, err := a.locks.Acquire(ctx, key, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.log.InfoContext(ctx, "archive already running elsewhere", slog.String("key", key))
			return nil
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	posCount, err := archiveBatch(ctx, a, "positions", cutoff,
		a.positions.ListClosedBefore, a.positions.DeleteClosedBefore)
	if err != nil {
		return err
	}
	sigCount, err := archiveBatch(ctx, a, "signals", cutoff,
		a.signals.ListBefore, a.signals.DeleteBefore)
	if err != nil {
		return err
	}

	a.log.InfoContext(ctx, "archive cycle complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("positions", posCount),
		slog.Int64("signals", sigCount))
	return nil
}

// archiveBatch runs one kind through list -> upload -> verify -> prune.
func archiveBatch[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	cutoff time.Time,
	list func(context.Context, time.Time) ([]T, error),
	prune func(context.Context, time.Time) (int64, error),
) (int64, error) {
	records, err := list(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, cutoff)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	ok, err := a.verify.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s verify: %w", kind, err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive %s verify: %s missing after upload", kind, path)
	}

	pruned, err := prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s prune: %w", kind, err)
	}

	a.log.InfoContext(ctx, "archived records",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int64("pruned", pruned))
	return int64(len(records)), nil
}

// archivePath partitions archive files by the cutoff's UTC date, under the
// client's configured key prefix:
//
//	2025-06-01/positions.jsonl
//	2025-06-01/signals.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("%s/%s.jsonl", cutoff.UTC().Format("2006-01-02"), kind)
}

// nextMidnightUTC returns the first UTC midnight strictly after t.
func nextMidnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
