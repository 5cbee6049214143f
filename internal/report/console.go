package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/throughput"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	rule     = "-------------------------------"
	longRule = "-----------------------------------------------------------------------------"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Console writes session reports to a terminal or a pipe.
//
// All methods are thread-safe.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	format   Format
	spinner  bool
	frame    int
	spinning bool
	history  *History
	logger   *logrus.Logger

	heading *color.Color
	success *color.Color
	failure *color.Color
	value   *color.Color
}

var _ throughput.Reporter = (*Console)(nil)

// Option configures a Console.
type Option func(*Console)

// WithFormat selects text or JSON output.
func WithFormat(f Format) Option {
	return func(c *Console) { c.format = f }
}

// WithColors forces colored text output on or off.
func WithColors(enabled bool) Option {
	return func(c *Console) {
		for _, col := range []*color.Color{c.heading, c.success, c.failure, c.value} {
			if enabled {
				col.EnableColor()
			} else {
				col.DisableColor()
			}
		}
	}
}

// WithSpinner animates scan progress. Only useful on a terminal.
func WithSpinner(enabled bool) Option {
	return func(c *Console) { c.spinner = enabled }
}

// WithHistory records run summaries into h.
func WithHistory(h *History) Option {
	return func(c *Console) { c.history = h }
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer, opts ...Option) *Console {
	c := &Console{
		out:     out,
		history: NewHistory(DefaultHistorySize),
		logger:  logrus.StandardLogger(),
		heading: color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed, color.Bold),
		value:   color.New(color.FgYellow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History returns the run history.
func (c *Console) History() *History {
	return c.history
}

func (c *Console) Booted(cfg throughput.SessionConfig) {
	c.emit("boot", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("mode", cfg.Mode.String())
		r.Set("banner", cfg.Banner())
		r.Set("device_name", cfg.DeviceName)
		r.Set("phy", cfg.PHY.String())
		r.Set("interval_ms", cfg.IntervalMillis())
		r.Set("mtu", cfg.MTU)
		r.Set("subscription", cfg.Subscription.String())
	}, func(w io.Writer) {
		fmt.Fprint(w, "\nSystem booted. Starting scanning... \n\n")
		fmt.Fprintf(w, "Mode: %s\n\n", c.heading.Sprint(cfg.Banner()))
	})
}

// ScanProgress advances the spinner. It is silent in JSON mode and when the
// spinner is off.
func (c *Console) ScanProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format != FormatText || !c.spinner {
		return
	}
	frame := spinnerFrames[c.frame%len(spinnerFrames)]
	c.frame++
	c.spinning = true
	c.write(fmt.Sprintf("(%s)\b\b\b", frame))
}

func (c *Console) DeviceFound(address string) {
	c.emit("device_found", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("address", address)
	}, func(w io.Writer) {
		fmt.Fprintf(w, "Found %s, connecting...\n", c.value.Sprint(address))
	})
}

func (c *Console) ConnectionOpened(conn device.ConnectionHandle) {
	c.emit("connection_opened", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("connection", conn)
	}, func(w io.Writer) {
		fmt.Fprint(w, c.success.Sprint("Connection opened!"), "\n\n")
	})
}

func (c *Console) ConnectionClosed(reason uint16) {
	c.emit("connection_closed", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("reason", fmt.Sprintf("0x%04x", reason))
	}, func(w io.Writer) {
		fmt.Fprintf(w, "Connection closed. (reason 0x%04x)\n\n", reason)
	})
}

func (c *Console) MTUExchanged(mtu uint16) {
	c.emit("mtu_exchanged", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("mtu", mtu)
	}, func(w io.Writer) {
		fmt.Fprintf(w, "MTU exchanged: %s\n\n", c.value.Sprint(mtu))
	})
}

func (c *Console) PHYStatus(phy device.PHY) {
	c.emit("phy_status", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("phy", phy.String())
	}, func(w io.Writer) {
		fmt.Fprintf(w, "PHY status: %s\n\n", c.value.Sprint(phy))
	})
}

func (c *Console) ServiceFound(service device.ServiceHandle) {
	c.emit("service_found", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("service", service)
	}, func(w io.Writer) {
		fmt.Fprintln(w, rule)
		fmt.Fprint(w, c.success.Sprint("Service found!"), "\n\n")
		fmt.Fprintln(w, "Starting characteristic discovery...")
	})
}

func (c *Console) CharacteristicFound(role throughput.CharacteristicRole, char device.CharacteristicHandle) {
	c.emit("characteristic_found", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("role", role.String())
		r.Set("characteristic", char)
		r.Set("uuid", role.UUID().String())
	}, func(w io.Writer) {
		name := role.String()
		if role == throughput.RoleResult {
			name = "throughput result"
		}
		fmt.Fprintf(w, "Found %s characteristic.\n", name)
	})
}

func (c *Console) Subscribed(role throughput.CharacteristicRole, kind device.SubscriptionKind) {
	c.emit("subscribed", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("role", role.String())
		r.Set("kind", kind.String())
	}, func(w io.Writer) {
		switch role {
		case throughput.RoleResult:
			fmt.Fprintln(w, "Subscribed to throughput result.")
		default:
			fmt.Fprintf(w, "Subscribed to %s.\n", role)
		}
	})
}

func (c *Console) DiscoveryDone(link throughput.LinkParameters) {
	c.emit("discovery_done", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("interval_ms", link.IntervalMillis())
		r.Set("latency", link.Latency)
		r.Set("timeout", link.Timeout)
		r.Set("pdu_size", link.PDUSize)
		r.Set("mtu", link.MTU)
		r.Set("phy", link.PHY.String())
	}, func(w io.Writer) {
		fmt.Fprint(w, "\n", c.heading.Sprint("DISCOVERY DONE."), "\n")
		fmt.Fprintln(w, longRule)
		fmt.Fprint(w, "\nParameters to be used:\n")
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Interval: %d\n", uint32(link.IntervalMillis()))
		fmt.Fprintf(w, "Latency: %d\n", link.Latency)
		fmt.Fprintf(w, "Timeout: %d\n", link.Timeout)
		fmt.Fprintf(w, "PDU size: %d\n", link.PDUSize)
		fmt.Fprint(w, longRule, "\n\n")
		fmt.Fprint(w, "\n", c.heading.Sprint("STARTING TEST"), "\n\n")
	})
}

func (c *Console) RunCompleted(s throughput.RunSummary) {
	if c.history != nil {
		if err := c.history.Add(s); err != nil {
			c.logger.WithError(err).Warn("Failed to record run history")
		}
	}
	c.emit("run_completed", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("mode", s.Mode.String())
		r.Set("bits", s.Bits)
		r.Set("bytes", s.Bytes())
		r.Set("elapsed_s", s.Elapsed.Seconds())
		r.Set("throughput_bps", s.Throughput)
		r.Set("operations", s.Operations)
	}, func(w io.Writer) {
		fmt.Fprintln(w, rule)
		fmt.Fprint(w, c.heading.Sprint("RESULTS:"), "\n\n")
		fmt.Fprintf(w, "Bits sent: %d\n", s.Bits)
		fmt.Fprintf(w, "Time elapsed: %.3f sec\n", s.Elapsed.Seconds())
		fmt.Fprintf(w, "Host calculated throughput: %s bps\n", c.value.Sprint(s.Throughput))
		fmt.Fprintf(w, "Operation count: %d\n", s.Operations)
		fmt.Fprint(w, rule, "\n\n")
	})
}

func (c *Console) DeviceResult(bps uint32) {
	c.emit("device_result", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("throughput_bps", bps)
	}, func(w io.Writer) {
		fmt.Fprintf(w, "Throughput result reported by device: %s bps\n\n", c.value.Sprint(bps))
	})
}

func (c *Console) Failure(err error) {
	c.emit("failure", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("error", err.Error())
	}, func(w io.Writer) {
		fmt.Fprintf(w, "%s %v\n", c.failure.Sprint("ERROR:"), err)
	})
}

// Summary prints statistics over the kept runs. Nothing is printed when no
// run completed.
func (c *Console) Summary() error {
	if c.history == nil {
		return nil
	}
	runs, err := c.history.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	st := Summarize(runs)

	c.emit("summary", func(r *orderedmap.OrderedMap[string, any]) {
		r.Set("total_runs", c.history.Total())
		r.Set("kept_runs", st.Runs)
		r.Set("best_bps", st.Best)
		r.Set("worst_bps", st.Worst)
		r.Set("average_bps", st.Average)
		list := make([]*orderedmap.OrderedMap[string, any], 0, len(runs))
		for _, run := range runs {
			rec := orderedmap.New[string, any]()
			rec.Set("mode", run.Mode.String())
			rec.Set("bytes", run.Bytes())
			rec.Set("elapsed_s", run.Elapsed.Seconds())
			rec.Set("throughput_bps", run.Throughput)
			list = append(list, rec)
		}
		r.Set("runs", list)
	}, func(w io.Writer) {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%s (%d of %d runs)\n\n", c.heading.Sprint("RUN HISTORY"), st.Runs, c.history.Total())
		for i, run := range runs {
			fmt.Fprintf(w, "#%-2d %-12s %10d bytes %8.3f sec %10d bps\n",
				i+1, run.Mode, run.Bytes(), run.Elapsed.Seconds(), run.Throughput)
		}
		fmt.Fprintf(w, "\nBest: %d bps  Worst: %d bps  Average: %d bps\n", st.Best, st.Worst, st.Average)
		fmt.Fprint(w, rule, "\n\n")
	})
	return nil
}

// emit renders one report in the configured format.
func (c *Console) emit(event string, fields func(r *orderedmap.OrderedMap[string, any]), text func(w io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == FormatJSON {
		rec := orderedmap.New[string, any]()
		rec.Set("event", event)
		fields(rec)
		data, err := json.Marshal(rec)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to encode report")
			return
		}
		c.write(string(data) + "\n")
		return
	}

	var b strings.Builder
	if c.spinning {
		// erase the spinner frame
		b.WriteString("   \b\b\b")
		c.spinning = false
	}
	text(&b)
	c.write(b.String())
}

func (c *Console) write(s string) {
	if _, err := io.WriteString(c.out, s); err != nil {
		c.logger.WithError(err).Debug("Failed to write report")
	}
}
