package events

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Auditor writes one structured log line per bus event so the decision trail
// can be reconstructed from process logs alone, without Postgres or Redis
// access. It logs the same flat fields Describe produces for the relay and
// the WebSocket hub.
type Auditor struct {
	log *slog.Logger
	bus *Bus
}

// NewAuditor wires the bus to the structured log. Run must be called to
// start recording.
func NewAuditor(logger *slog.Logger, bus *Bus) *Auditor {
	return &Auditor{
		log: logger.With(slog.String("component", "audit")),
		bus: bus,
	}
}

// Run records bus events until the context is cancelled or the bus closes.
func (a *Auditor) Run(ctx context.Context) error {
	ch, cancel := a.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			a.record(ctx, evt)
		}
	}
}

// record logs the event name as the message with its remaining fields as
// sorted attributes, so lines stay grep-stable across runs.
func (a *Auditor) record(ctx context.Context, evt domain.Event) {
	channel, fields := Describe(evt)
	if channel == "" {
		return
	}
	name, _ := fields["event"].(string)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "event" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("channel", channel))
	for _, k := range keys {
		args = append(args, slog.Any(k, fields[k]))
	}
	a.log.InfoContext(ctx, name, args...)
}
