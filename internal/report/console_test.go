package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/testutils"
	"github.com/srg/blethroughput/internal/throughput"
)

var testLink = throughput.LinkParameters{
	Interval: 40,
	MTU:      250,
	PDUSize:  251,
	Timeout:  100,
	Latency:  0,
	PHY:      device.PHY1M,
}

var testRun = throughput.RunSummary{
	Mode:       throughput.ModeFixedAmount,
	Bits:       80000,
	Elapsed:    time.Second,
	Throughput: 80000,
	Operations: 20,
}

func newTextConsole(t *testing.T, opts ...Option) (*Console, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := testutils.NewTestHelper(t)
	opts = append([]Option{WithColors(false), WithLogger(h.Logger)}, opts...)
	return NewConsole(&buf, opts...), &buf
}

// playSession drives a console through one complete fixed-amount session.
func playSession(c *Console) {
	cfg := throughput.DefaultSessionConfig()
	cfg.Mode = throughput.ModeFixedAmount
	cfg.FixedAmount = 10000

	c.Booted(cfg)
	c.DeviceFound("00:0b:57:aa:bb:cc")
	c.ConnectionOpened(1)
	c.MTUExchanged(250)
	c.PHYStatus(device.PHY1M)
	c.ServiceFound(0x00010020)
	c.CharacteristicFound(throughput.RoleNotifications, 21)
	c.CharacteristicFound(throughput.RoleIndications, 24)
	c.CharacteristicFound(throughput.RoleTransmission, 27)
	c.CharacteristicFound(throughput.RoleResult, 30)
	c.Subscribed(throughput.RoleNotifications, device.SubscribeNotification)
	c.Subscribed(throughput.RoleResult, device.SubscribeIndication)
	c.DiscoveryDone(testLink)
	c.RunCompleted(testRun)
	c.DeviceResult(79872)
	c.ConnectionClosed(0x0213)
}

func TestConsole_TextSession(t *testing.T) {
	// GOAL: Verify text output reproduces the progress lines and result block
	//
	// TEST SCENARIO: One fixed-amount session from boot to disconnect → full transcript matches

	c, buf := newTextConsole(t)
	playSession(c)

	expected := `
System booted. Starting scanning...

Mode: Fixed data amount mode (10000 bytes)

Found 00:0b:57:aa:bb:cc, connecting...
Connection opened!

MTU exchanged: 250

PHY status: 1M

-------------------------------
Service found!

Starting characteristic discovery...
Found notifications characteristic.
Found indications characteristic.
Found transmission characteristic.
Found throughput result characteristic.
Subscribed to notifications.
Subscribed to throughput result.

DISCOVERY DONE.
-----------------------------------------------------------------------------

Parameters to be used:
-------------------------------
Interval: 50
Latency: 0
Timeout: 100
PDU size: 251
-----------------------------------------------------------------------------


STARTING TEST

-------------------------------
RESULTS:

Bits sent: 80000
Time elapsed: 1.000 sec
Host calculated throughput: 80000 bps
Operation count: 20
-------------------------------

Throughput result reported by device: 79872 bps

Connection closed. (reason 0x0213)

`
	testutils.NewTextAsserter(t).Assert(buf.String(), expected)
}

func TestConsole_JSONSession(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithFormat(FormatJSON))
	playSession(c)

	testutils.NewJSONAsserter(t).AssertLines(buf.String(),
		`{"event":"boot","mode":"fixed-amount","banner":"Fixed data amount mode (10000 bytes)","phy":"1M","mtu":250}`,
		`{"event":"device_found","address":"00:0b:57:aa:bb:cc"}`,
		`{"event":"connection_opened","connection":1}`,
		`{"event":"mtu_exchanged","mtu":250}`,
		`{"event":"phy_status","phy":"1M"}`,
		`{"event":"service_found","service":65568}`,
		`{"event":"characteristic_found","role":"notifications","characteristic":21}`,
		`{"event":"characteristic_found","role":"indications","characteristic":24}`,
		`{"event":"characteristic_found","role":"transmission","characteristic":27}`,
		`{"event":"characteristic_found","role":"result","characteristic":30}`,
		`{"event":"subscribed","role":"notifications","kind":"notification"}`,
		`{"event":"subscribed","role":"result","kind":"indication"}`,
		`{"event":"discovery_done","interval_ms":50,"latency":0,"timeout":100,"pdu_size":251}`,
		`{"event":"run_completed","mode":"fixed-amount","bits":80000,"bytes":10000,"elapsed_s":1,"throughput_bps":80000,"operations":20}`,
		`{"event":"device_result","throughput_bps":79872}`,
		`{"event":"connection_closed","reason":"0x0213"}`,
	)
}

func TestConsole_JSONKeepsFieldOrder(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithFormat(FormatJSON))

	c.MTUExchanged(247)

	assert.Equal(t, "{\"event\":\"mtu_exchanged\",\"mtu\":247}\n", buf.String())
}

func TestConsole_Spinner(t *testing.T) {
	t.Run("animates and erases before next line", func(t *testing.T) {
		c, buf := newTextConsole(t, WithSpinner(true))

		c.ScanProgress()
		c.ScanProgress()
		c.DeviceFound("aa")

		assert.Equal(t, "(|)\b\b\b(/)\b\b\b   \b\b\bFound aa, connecting...\n", buf.String())
	})

	t.Run("silent when disabled", func(t *testing.T) {
		c, buf := newTextConsole(t)
		c.ScanProgress()
		assert.Empty(t, buf.String())
	})

	t.Run("silent in json", func(t *testing.T) {
		c, buf := newTextConsole(t, WithSpinner(true), WithFormat(FormatJSON))
		c.ScanProgress()
		assert.Empty(t, buf.String())
	})
}

func TestConsole_Failure(t *testing.T) {
	c, buf := newTextConsole(t)
	c.Failure(errors.New("service discovery failed with result 0x040e"))
	assert.Equal(t, "ERROR: service discovery failed with result 0x040e\n", buf.String())

	var jbuf bytes.Buffer
	NewConsole(&jbuf, WithFormat(FormatJSON)).Failure(throughput.ErrServiceNotFound)
	testutils.NewJSONAsserter(t).Assert(jbuf.String(), `{"event":"failure","error":"throughput service not found"}`)
}

func TestConsole_ColorsEnabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, WithColors(true))

	c.ConnectionOpened(1)

	assert.Contains(t, buf.String(), "\x1b[")
	testutils.NewTextAsserter(t).Assert(buf.String(), "Connection opened!\n\n")
}

func TestConsole_Summary(t *testing.T) {
	t.Run("nothing without runs", func(t *testing.T) {
		c, buf := newTextConsole(t)
		require.NoError(t, c.Summary())
		assert.Empty(t, buf.String())
	})

	t.Run("text", func(t *testing.T) {
		c, buf := newTextConsole(t)
		c.RunCompleted(testRun)
		second := testRun
		second.Mode = throughput.ModeFree
		second.Throughput = 40000
		second.Elapsed = 2 * time.Second
		c.RunCompleted(second)
		buf.Reset()

		require.NoError(t, c.Summary())

		expected := `-------------------------------
RUN HISTORY (2 of 2 runs)

#1  fixed-amount      10000 bytes    1.000 sec      80000 bps
#2  free              10000 bytes    2.000 sec      40000 bps

Best: 80000 bps  Worst: 40000 bps  Average: 60000 bps
-------------------------------

`
		testutils.NewTextAsserter(t).Assert(buf.String(), expected)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		c := NewConsole(&buf, WithFormat(FormatJSON))
		c.RunCompleted(testRun)
		buf.Reset()

		require.NoError(t, c.Summary())
		testutils.NewJSONAsserter(t).Assert(buf.String(), `{
			"event": "summary",
			"total_runs": 1,
			"kept_runs": 1,
			"best_bps": 80000,
			"average_bps": 80000,
			"runs": [{"mode": "fixed-amount", "bytes": 10000, "throughput_bps": 80000}]
		}`)
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.ErrorContains(t, err, "unsupported output format")
	assert.Equal(t, "json", FormatJSON.String())
}
