package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	puts       map[string][]byte
	multiparts int
	err        error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.err != nil {
		return f.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[path] = buf
	return nil
}

func (f *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	f.multiparts++
	return f.Put(ctx, path, data, "")
}

type fakeVerifier struct {
	missing bool
	err     error
}

func (f *fakeVerifier) Exists(context.Context, string) (bool, error) {
	return !f.missing, f.err
}

type fakeSignalArchive struct {
	signals []domain.Signal
	pruned  []time.Time
}

func (f *fakeSignalArchive) ListBefore(_ context.Context, before time.Time) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, s := range f.signals {
		if s.CreatedAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSignalArchive) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.pruned = append(f.pruned, before)
	return int64(len(f.signals)), nil
}

type fakePositionArchive struct {
	positions []domain.Position
	pruned    []time.Time
}

func (f *fakePositionArchive) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range f.positions {
		if p.ClosedAt != nil && p.ClosedAt.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositionArchive) DeleteClosedBefore(_ context.Context, before time.Time) (int64, error) {
	f.pruned = append(f.pruned, before)
	return int64(len(f.positions)), nil
}

type fakeLocks struct {
	held     bool
	acquired []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

func archiveFixtures() (*fakeSignalArchive, *fakePositionArchive) {
	closedAt := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	exit := 0.61
	signals := &fakeSignalArchive{signals: []domain.Signal{
		{ID: "sig-1", Symbol: "BTC", Actionable: true, CreatedAt: closedAt},
	}}
	positions := &fakePositionArchive{positions: []domain.Position{
		{ID: "pos-1", Symbol: "BTC", Status: domain.PositionStatusClosed, ClosedAt: &closedAt, ExitPrice: &exit},
		{ID: "pos-2", Symbol: "ETH", Status: domain.PositionStatusClosed, ClosedAt: &closedAt, ExitPrice: &exit},
	}}
	return signals, positions
}

func TestArchiveDayUploadsAndPrunes(t *testing.T) {
	signals, positions := archiveFixtures()
	writer := &fakeWriter{}
	locks := &fakeLocks{}
	a := NewArchiver(testLogger(), writer, &fakeVerifier{}, signals, positions, locks)

	cutoff := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	if err := a.ArchiveDay(context.Background(), cutoff); err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}

	posBuf, ok := writer.puts["2024-06-02/positions.jsonl"]
	if !ok {
		t.Fatalf("expected positions archive uploaded, got %v", writer.puts)
	}
	lines := strings.Split(strings.TrimSpace(string(posBuf)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 position lines, got %d", len(lines))
	}
	var first domain.Position
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode position line: %v", err)
	}
	if first.ID != "pos-1" {
		t.Fatalf("expected pos-1 first, got %s", first.ID)
	}

	if _, ok := writer.puts["2024-06-02/signals.jsonl"]; !ok {
		t.Fatalf("expected signals archive uploaded, got %v", writer.puts)
	}

	if len(positions.pruned) != 1 || !positions.pruned[0].Equal(cutoff) {
		t.Fatalf("expected positions pruned at cutoff, got %v", positions.pruned)
	}
	if len(signals.pruned) != 1 {
		t.Fatalf("expected signals pruned once, got %v", signals.pruned)
	}
	if len(locks.acquired) != 1 || locks.acquired[0] != "archive:2024-06-02" {
		t.Fatalf("expected day lock acquired, got %v", locks.acquired)
	}
	if writer.multiparts != 0 {
		t.Fatalf("small payloads must use single-shot Put, got %d multipart calls", writer.multiparts)
	}
}

func TestArchiveDaySkipsWhenLockHeld(t *testing.T) {
	signals, positions := archiveFixtures()
	writer := &fakeWriter{}
	a := NewArchiver(testLogger(), writer, &fakeVerifier{}, signals, positions, &fakeLocks{held: true})

	cutoff := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	if err := a.ArchiveDay(context.Background(), cutoff); err != nil {
		t.Fatalf("held lock must not be an error, got %v", err)
	}
	if len(writer.puts) != 0 {
		t.Fatalf("expected no uploads when lock is held, got %v", writer.puts)
	}
	if len(positions.pruned) != 0 {
		t.Fatal("expected no pruning when lock is held")
	}
}

func TestArchiveVerifyFailureKeepsRows(t *testing.T) {
	signals, positions := archiveFixtures()
	a := NewArchiver(testLogger(), &fakeWriter{}, &fakeVerifier{missing: true}, signals, positions, nil)

	cutoff := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	err := a.ArchiveDay(context.Background(), cutoff)
	if err == nil || !strings.Contains(err.Error(), "verify") {
		t.Fatalf("expected verify failure, got %v", err)
	}
	if len(positions.pruned) != 0 || len(signals.pruned) != 0 {
		t.Fatal("unverified upload must not prune")
	}
}

func TestArchiveDayEmptyIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(testLogger(), writer, &fakeVerifier{}, &fakeSignalArchive{}, &fakePositionArchive{}, nil)

	if err := a.ArchiveDay(context.Background(), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}
	if len(writer.puts) != 0 {
		t.Fatalf("expected no uploads for empty stores, got %v", writer.puts)
	}
}

func TestArchiveUploadFailureStopsCycle(t *testing.T) {
	signals, positions := archiveFixtures()
	writer := &fakeWriter{err: errors.New("bucket gone")}
	a := NewArchiver(testLogger(), writer, &fakeVerifier{}, signals, positions, nil)

	err := a.ArchiveDay(context.Background(), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	if err == nil || !strings.Contains(err.Error(), "upload") {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if len(positions.pruned) != 0 {
		t.Fatal("failed upload must not prune")
	}
}

func TestNextMidnightUTC(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{
			in:   time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC),
			want: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			in:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			in:   time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := nextMidnightUTC(tc.in); !got.Equal(tc.want) {
			t.Fatalf("nextMidnightUTC(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMarshalJSONLRoundTrip(t *testing.T) {
	recs := []domain.Signal{
		{ID: "a", Symbol: "BTC"},
		{ID: "b", Symbol: "ETH"},
	}
	buf, err := marshalJSONL(recs)
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if bytes.Count(buf, []byte("\n")) != 2 {
		t.Fatalf("expected 2 newline-terminated lines, got %q", buf)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := NewArchiver(testLogger(), &fakeWriter{}, &fakeVerifier{}, &fakeSignalArchive{}, &fakePositionArchive{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
