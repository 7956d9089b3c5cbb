package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/randalmurphal/eventhub/pkg/eventhub"
	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/lifecycle"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// Synthetic event types.
type (
	tick struct {
		Frame int
	}
	damaged struct {
		Amount int
		Source string
	}
	spawned struct {
		ID   int
		Kind string
	}
)

var sources = [...]string{"Fire", "Ice", "Fall", "Poison"}

type soakOptions struct {
	configPath   string
	events       int
	handlers     int
	leak         int
	oneShot      int
	instrumented bool

	logOut io.Writer
}

func defaultSoakOptions() soakOptions {
	return soakOptions{
		events:   100_000,
		handlers: 4,
		leak:     1,
		oneShot:  1,
	}
}

func (o soakOptions) validate() error {
	switch {
	case o.events < 0:
		return fmt.Errorf("events must be >= 0, got %d", o.events)
	case o.handlers < 0, o.leak < 0, o.oneShot < 0:
		return errors.New("handler counts must be >= 0")
	}
	return nil
}

// soakResult is what one run measured.
type soakResult struct {
	published int
	delivered int64
	elapsed   time.Duration
	report    *lifecycle.Report
}

func runSoak(ctx context.Context, opts soakOptions, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return err
	}

	settings := config.Default()
	if opts.configPath != "" {
		settings, err = config.FromFile(opts.configPath)
		if err != nil {
			return err
		}
	}

	logOut := opts.logOut
	if logOut == nil {
		logOut = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: settings.Level()}))

	host, err := lifecycle.New(settings, lifecycle.WithLogger(logger))
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(host))

	res, err := soak(ctx, host, opts)
	if res != nil {
		printResult(out, host.Settings(), res)
	}
	return err
}

func soak(ctx context.Context, host *lifecycle.Host, opts soakOptions) (*soakResult, error) {
	var delivered atomic.Int64

	if err := attach[tick](host, opts, &delivered); err != nil {
		return nil, err
	}
	if err := attach[damaged](host, opts, &delivered); err != nil {
		return nil, err
	}
	if err := attach[spawned](host, opts, &delivered); err != nil {
		return nil, err
	}

	hub := host.Hub()
	ticks := eventhub.For[tick](hub)
	hits := eventhub.For[damaged](hub)
	spawns := eventhub.For[spawned](hub)

	done := observability.TimedOperation()
	start := time.Now()

	published := 0
	var pubErr error
	for i := 0; i < opts.events; i++ {
		if i&1023 == 0 {
			if pubErr = ctx.Err(); pubErr != nil {
				break
			}
		}

		switch i % 3 {
		case 0:
			if opts.instrumented {
				pubErr = eventhub.PublishContext(ctx, hub, tick{Frame: i})
			} else {
				pubErr = ticks.Publish(tick{Frame: i})
			}
		case 1:
			evt := damaged{Amount: i%50 + 1, Source: sources[i%len(sources)]}
			if opts.instrumented {
				pubErr = eventhub.PublishContext(ctx, hub, evt)
			} else {
				pubErr = hits.Publish(evt)
			}
		case 2:
			evt := spawned{ID: i, Kind: "crate"}
			if opts.instrumented {
				pubErr = eventhub.PublishContext(ctx, hub, evt)
			} else {
				pubErr = spawns.Publish(evt)
			}
		}
		if pubErr != nil {
			break
		}
		published++
	}

	elapsed := time.Since(start)
	host.Hub().Logger().Debug("soak published",
		slog.Int("events", published),
		slog.Float64("duration_ms", done()),
	)

	report, err := host.Teardown(ctx, "soak complete")
	return &soakResult{
		published: published,
		delivered: delivered.Load(),
		elapsed:   elapsed,
		report:    report,
	}, multierr.Append(pubErr, err)
}

// attach subscribes the synthetic handlers for E: bound handlers scoped
// to the session, unbound ones that will be reported as leaks, and
// one-shot handlers that remove themselves.
func attach[E any](host *lifecycle.Host, opts soakOptions, delivered *atomic.Int64) error {
	hub := host.Hub()
	counter := func() eventhub.Handler[E] {
		return eventhub.HandlerOf(func(E) { delivered.Add(1) })
	}

	if opts.handlers > 0 {
		b, err := eventhub.Bind(hub, counter())
		if err != nil {
			return err
		}
		for i := 1; i < opts.handlers; i++ {
			if err := b.Add(counter()); err != nil {
				return err
			}
		}
		host.Scope(b)
	}

	for i := 0; i < opts.leak; i++ {
		if err := eventhub.Subscribe(hub, counter()); err != nil {
			return err
		}
	}

	for i := 0; i < opts.oneShot; i++ {
		var self eventhub.Handler[E]
		self = eventhub.HandlerOf(func(E) {
			delivered.Add(1)
			_ = eventhub.Unsubscribe(hub, self)
		})
		if err := eventhub.Subscribe(hub, self); err != nil {
			return err
		}
	}
	return nil
}

func printResult(out io.Writer, s config.Settings, res *soakResult) {
	rate := 0.0
	if secs := res.elapsed.Seconds(); secs > 0 {
		rate = float64(res.published) / secs
	}

	fmt.Fprintf(out, "published   %d events in %s (%.0f events/s)\n", res.published, res.elapsed.Round(time.Microsecond), rate)
	fmt.Fprintf(out, "delivered   %d handler calls\n", res.delivered)

	if res.report == nil {
		return
	}
	r := res.report
	fmt.Fprintf(out, "session     %s\n", r.SessionID)
	fmt.Fprintf(out, "teardown    reason=%q policy=%s cleared=%t closed=%d\n", r.Reason, s.ResetPolicy, r.Cleared, r.Closed)
	fmt.Fprintf(out, "leaks       %d handlers in %d registries\n", r.Leaked(), len(r.Leaks))
	for _, e := range r.Leaks {
		fmt.Fprintf(out, "  %-24s %d\n", e.EventType, e.Remaining)
	}
}
