// Package report delivers accepted readings to the collector and mirrors
// them to optional secondary sinks.
package report

import (
	"context"
	"log"

	"github.com/sweeney/ph-doser/internal/logic"
)

// Reporter delivers a reading and reports whether it was accepted.
type Reporter interface {
	Report(ctx context.Context, r logic.Reading) error
}

// Sink is a best-effort secondary destination for readings.
type Sink interface {
	PublishReading(r logic.Reading) error
}

// Fanout reports to a primary Reporter and copies every reading to the
// sinks. Only the primary's result is returned; sink errors are logged.
type Fanout struct {
	primary Reporter
	sinks   map[string]Sink
	order   []string
}

// NewFanout creates a Fanout around the primary reporter.
func NewFanout(primary Reporter) *Fanout {
	return &Fanout{primary: primary, sinks: make(map[string]Sink)}
}

// AddSink registers a named sink. A nil sink is ignored.
func (f *Fanout) AddSink(name string, s Sink) {
	if s == nil {
		return
	}
	if _, ok := f.sinks[name]; !ok {
		f.order = append(f.order, name)
	}
	f.sinks[name] = s
}

// Sinks returns the registered sink names in registration order.
func (f *Fanout) Sinks() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Report sends r to the primary, then mirrors it to every sink. The
// primary is never delayed by a slow sink.
func (f *Fanout) Report(ctx context.Context, r logic.Reading) error {
	err := f.primary.Report(ctx, r)
	for _, name := range f.order {
		if serr := f.sinks[name].PublishReading(r); serr != nil {
			log.Printf("report: %s sink: %v", name, serr)
		}
	}
	return err
}
