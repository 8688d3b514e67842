package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/curbz/cognition/internal/cognition"
	"github.com/curbz/cognition/internal/journal"
	"github.com/curbz/cognition/internal/link"
	"github.com/curbz/cognition/internal/log"
	"github.com/curbz/cognition/internal/mockserver"
	"github.com/curbz/cognition/internal/recorder"
	"github.com/curbz/cognition/internal/telemetry"
	"github.com/curbz/cognition/pkg/util"
)

type appConfig struct {
	Link      link.Config      `yaml:"link"`
	Log       log.Config       `yaml:"log"`
	Journal   journal.Config   `yaml:"journal"`
	Recorder  recorder.Config  `yaml:"recorder"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

var errBusClosed = errors.New("bus closed the connection")

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	mockPort := flag.String("mockbus", "", "start a mock vehicle bus on this port and connect to it")
	flag.Parse()

	if err := run(*cfgPath, *mockPort); err != nil {
		fmt.Fprintf(os.Stderr, "cognition: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, mockPort string) error {
	app, err := util.LoadConfig[appConfig](cfgPath)
	if err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	ccfg, err := cognition.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	lg := log.New(app.Log)
	defer lg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, app.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			lg.Warn("telemetry shutdown", "error", err)
		}
	}()

	var jr *journal.Journal
	if app.Journal.Path != "" {
		if jr, err = journal.Open(app.Journal.Path); err != nil {
			return err
		}
		defer jr.Close()
	}
	var rec *recorder.Recorder
	if app.Recorder.Path != "" {
		if rec, err = recorder.Open(app.Recorder.Path); err != nil {
			return err
		}
		defer rec.Close()
	}

	if mockPort != "" {
		srv := mockserver.New(lg).Start(mockPort)
		defer srv.Close()
		app.Link.URL = "ws://127.0.0.1:" + mockPort + mockserver.BusPath
		// give the listener a moment to come up
		time.Sleep(100 * time.Millisecond)
	}

	core := cognition.New(ccfg, lg)
	bus := link.New(app.Link, core, lg)
	if err := bus.Connect(ctx); err != nil {
		return err
	}
	defer bus.Close()

	lg.Info("cognition started", "cycle_hz", ccfg.CycleHz, "bus", app.Link.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bus.Listen(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errBusClosed
		}
		return nil
	})
	g.Go(func() error {
		return runCycles(gctx, core, bus, jr, rec, lg)
	})

	err = g.Wait()
	lg.Info("cognition stopped", "error", err)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runCycles drives the decision core at the configured rate and hands each
// report to the bus, the journal and the recorder.
func runCycles(ctx context.Context, core *cognition.Core, bus *link.Link, jr *journal.Journal, rec *recorder.Recorder, lg *log.Logger) error {
	period := time.Duration(float64(time.Second) / core.Config().CycleHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		r, err := core.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := bus.Publish(r); err != nil {
			lg.Warn("publish failed", "cycle", r.Cycle, "error", err)
		}
		if jr != nil {
			if err := jr.RecordEvents(ctx, r.Events); err != nil {
				lg.Warn("journal write failed", "cycle", r.Cycle, "error", err)
			}
		}
		if err := rec.Record(r); err != nil {
			lg.Warn("recorder write failed", "cycle", r.Cycle, "error", err)
		}
	}
}
