package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos"
	"github.com/axeberg/axebergos/internal/logging"
	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/service/runner"
	"github.com/axeberg/axebergos/tracing"
)

var (
	fConfig   = pflag.StringP("config", "c", "", "kernel configuration URL (yaml)")
	fSet      = pflag.StringArrayP("set", "s", nil, "configuration override key=value, repeatable")
	fLogLevel = pflag.StringP("log-level", "l", "", "log level (trace, debug, info, warn, error)")
	fTrace    = pflag.String("trace-file", "", "export step spans to this file")
	fSnapshot = pflag.String("snapshot", "", "write a kernel snapshot to this URL on exit")
	fWorkers  = pflag.IntP("workers", "w", 3, "number of demo worker processes")
	fTimeout  = pflag.Duration("timeout", 0, "stop the kernel after this duration")
)

func main() {
	pflag.Parse()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *fTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *fTimeout)
		defer cancel()
	}

	fs := afs.New()
	config, err := axebergos.LoadConfig(ctx, fs, *fConfig, *fSet...)
	if err != nil {
		log.Fatal(err)
	}
	if *fLogLevel != "" {
		config.Log.Level = *fLogLevel
	}
	if *fTrace != "" {
		config.Tracing.Enabled = true
		config.Tracing.OutputFile = *fTrace
	}
	logger := logging.New(config.Log.Name, config.Log.Level, os.Stderr)

	if config.Tracing.Enabled {
		if err := tracing.Init(config.Tracing.ServiceName, config.Tracing.Version, config.Tracing.OutputFile); err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := tracing.Shutdown(context.Background()); err != nil {
				logger.Warn("trace shutdown", "error", err)
			}
		}()
	}

	kernel, err := axebergos.New(
		axebergos.WithConfig(config),
		axebergos.WithLogger(logger),
		axebergos.WithFS(fs),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer kernel.Shutdown()

	shell := newShell(*fWorkers, os.Stdout)
	if _, err := kernel.Spawn(proc.Init, executor.Critical, shell, axebergos.SpawnOptions{Name: "sh"}); err != nil {
		log.Fatal(err)
	}

	loop := runner.New(kernel, runner.WithConfig(config.Runner), runner.WithLogger(logger.Named("runner")))
	runErr := loop.Run(ctx)

	if *fSnapshot != "" {
		if err := kernel.DumpSnapshot(context.Background(), *fSnapshot); err != nil {
			logger.Error("snapshot", "error", err)
		}
	}
	counters := kernel.Stats().Snapshot()
	fmt.Printf("ticks=%d polls=%d spawned=%d reaped=%d signals=%d timers=%d\n",
		counters.Ticks, counters.Polls, counters.ProcessesSpawned, counters.ProcessesReaped,
		counters.SignalsDelivered, counters.TimersFired)
	if runErr != nil && ctx.Err() == nil {
		log.Fatal(runErr)
	}
}
