package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blethroughput/internal/device"
	goble "github.com/srg/blethroughput/internal/device/go-ble"
	"github.com/srg/blethroughput/internal/eventq"
	"github.com/srg/blethroughput/internal/groutine"
	"github.com/srg/blethroughput/internal/report"
	"github.com/srg/blethroughput/internal/throughput"
	"github.com/srg/blethroughput/pkg/config"
)

// sessionStack is what the command needs from a BLE stack adapter.
type sessionStack interface {
	device.Stack
	device.EventSource
	io.Closer
	Metrics() eventq.Metrics
}

// newStack builds the platform adapter. Tests replace it.
var newStack = func(logger *logrus.Logger, cfg *config.Config) sessionStack {
	return goble.New(logger,
		goble.WithConnectTimeout(cfg.ConnectTimeout),
		goble.WithQueueSize(cfg.QueueSize),
	)
}

// notifyInterrupt subscribes c to Ctrl+C and SIGTERM. Tests replace it.
var notifyInterrupt = func(c chan<- os.Signal) (stop func()) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return func() { signal.Stop(c) }
}

func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "YAML profile with session defaults")
	f.String("mode", "", "Test mode: fixed-time, fixed-amount or free")
	f.Uint32("time", 0, "Run duration in seconds for fixed-time mode (1-599)")
	f.Uint32("amount", 0, "Bytes to receive in fixed-amount mode (1000-9999999)")
	f.String("phy", "", "Preferred PHY: 1m, 2m or coded")
	f.Uint32("interval", 0, "Connection interval in ms (20-4000)")
	f.Uint16("mtu", 0, "Requested ATT MTU (23-250)")
	f.String("subscription", "", "Data characteristic subscription: notification or indication")
	f.String("format", "", "Output format: text or json")
	f.String("device-name", "", "Advertised name of the peripheral to connect to")
	f.Duration("connect-timeout", 0, "Connection establishment timeout")
	f.Int("history", 0, "Number of runs kept for the exit summary")
}

// loadConfig reads the optional profile and applies only the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("mode") {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("time") {
		cfg.FixedTime, _ = flags.GetUint32("time")
	}
	if flags.Changed("amount") {
		cfg.FixedAmount, _ = flags.GetUint32("amount")
	}
	if flags.Changed("phy") {
		cfg.PHY, _ = flags.GetString("phy")
	}
	if flags.Changed("interval") {
		cfg.IntervalMS, _ = flags.GetUint32("interval")
	}
	if flags.Changed("mtu") {
		cfg.MTU, _ = flags.GetUint16("mtu")
	}
	if flags.Changed("subscription") {
		cfg.Subscription, _ = flags.GetString("subscription")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("device-name") {
		cfg.DeviceName, _ = flags.GetString("device-name")
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout, _ = flags.GetDuration("connect-timeout")
	}
	if flags.Changed("history") {
		cfg.HistorySize, _ = flags.GetInt("history")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runThroughput(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	session, err := cfg.Session()
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"mode":         session.Mode,
		"phy":          session.PHY,
		"interval_ms":  cfg.IntervalMS,
		"mtu":          session.MTU,
		"subscription": session.Subscription,
		"device_name":  session.DeviceName,
	}).Debug("Starting throughput session")

	out := cmd.OutOrStdout()
	format := cfg.OutputFormat()
	console := report.NewConsole(out,
		report.WithFormat(format),
		report.WithSpinner(isTerminal(out)),
		report.WithColors(colorsEnabled(out)),
		report.WithHistory(report.NewHistory(cfg.HistorySize)),
		report.WithLogger(logger),
	)

	stack := newStack(logger, cfg)
	defer func() {
		if err := stack.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close BLE stack")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C
	var interrupted atomic.Bool
	interrupts := make(chan struct{}, 1)
	sigCh := make(chan os.Signal, 1)
	stop := notifyInterrupt(sigCh)
	defer stop()
	groutine.Go(ctx, "interrupt-forwarder", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				logger.WithField("signal", sig).Debug("Interrupt received")
				interrupted.Store(true)
				select {
				case interrupts <- struct{}{}:
				default:
				}
			}
		}
	})

	// Keep stdout machine readable in JSON mode
	promptOut := out
	if format == report.FormatJSON {
		promptOut = cmd.ErrOrStderr()
	}
	prompt := newPrompter(ctx, cmd.InOrStdin(), promptOut, interrupts, logger)

	loop := &throughput.Loop{
		Controller: throughput.NewController(session, stack,
			throughput.WithReporter(console),
			throughput.WithLogger(logger),
		),
		Stack:      stack,
		Events:     stack.Events(),
		Prompt:     prompt.Ask,
		Interrupts: interrupts,
		Logger:     logger,
	}

	runErr := loop.Run(ctx)

	m := stack.Metrics()
	logger.WithFields(logrus.Fields{
		"written": m.Written,
		"dropped": m.Dropped,
		"errors":  m.Errors,
	}).Debug("Event queue statistics")

	if runErr == nil && interrupted.Load() && !session.Mode.OneShot() && format == report.FormatText {
		fmt.Fprintln(out, "\nExiting program from free mode...")
	}

	if err := console.Summary(); err != nil {
		logger.WithError(err).Warn("Failed to print run summary")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("throughput session failed: %w", runErr)
	}
	return runErr
}
