package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

func le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func newGSROptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Path:           filepath.Join(t.TempDir(), "gsr_S1_20240101_120000.csv"),
		ConnectTimeout: 200 * time.Millisecond,
	}
}

func runUntilExhausted(t *testing.T, a *GSRAdapter, conn *mockConn) error {
	t.Helper()
	tok := cancel.New()
	conn.onExhausted = tok.Signal

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), tok) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
		return nil
	}
}

func TestGSR_IntervalClamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultGSRInterval},
		{10 * time.Millisecond, MinGSRInterval},
		{150 * time.Millisecond, 150 * time.Millisecond},
		{time.Second, MaxGSRInterval},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			a := NewGSR(&mockBLE{}, GSRConfig{Interval: tt.in}, Options{})
			assert.Equal(t, tt.want, a.Interval())
		})
	}
}

func TestGSR_ScenarioS1(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{{payload: le(2000)}, {payload: le(2000)}, {payload: le(2000)}, {payload: le(2500)}}

	tap := NewTap(16)
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{
		Address:       "CC:DD",
		Interval:      MinGSRInterval,
		Extended:      true,
		ImpulseWindow: 3,
		MinDelta:      0.1,
		MaxDelta:      0.5,
		Tap:           tap,
	}, newGSROptions(t))

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, runUntilExhausted(t, a, conn))
	require.NoError(t, a.Close())

	rows := readRows(t, a.Outputs()[0], GSRExtendedHeader)
	require.Len(t, rows, 4)

	c := biometrics.DefaultConductance()
	base := c.Microsiemens(2000)
	for i, row := range rows {
		require.Len(t, row, 5)
		_, err := strconv.ParseFloat(row[0], 64)
		assert.NoError(t, err, "epoch column")
		_, err = timebase.Parse(row[1])
		assert.NoError(t, err, "iso column")
		if i < 3 {
			assert.Equal(t, "2000", row[2])
			assert.Equal(t, "false", row[4], "row %d equals its own average", i)
		}
	}

	assert.Equal(t, "2500", rows[3][2])
	us, err := strconv.ParseFloat(rows[3][3], 64)
	require.NoError(t, err)
	assert.InDelta(t, c.Microsiemens(2500), us, 1e-4)
	assert.Equal(t, strconv.FormatBool(biometrics.InBand(c.Microsiemens(2500)-base, 0.1, 0.5)), rows[3][4])

	assert.Equal(t, 4, tap.Len())
	assert.Equal(t, uint64(4), a.Stats().Samples)
}

func TestGSR_ExplicitEmptyBandNeverFlags(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{{payload: le(2000)}, {payload: le(1997)}}
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{
		Address:       "CC:DD",
		Interval:      MinGSRInterval,
		Extended:      true,
		ImpulseWindow: 1,
	}, newGSROptions(t))

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, runUntilExhausted(t, a, conn))
	require.NoError(t, a.Close())

	c := biometrics.DefaultConductance()
	require.True(t, biometrics.InBand(c.Microsiemens(1997)-c.Microsiemens(2000), 0.1, 0.5),
		"delta must sit inside the usual band")

	rows := readRows(t, a.Outputs()[0], GSRExtendedHeader)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "false", row[4])
	}
}

func TestGSR_RawRows(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{{payload: []byte("1800\r\n")}}
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{
		Address:  "CC:DD",
		Interval: MinGSRInterval,
		Format:   biometrics.PayloadASCII,
	}, newGSROptions(t))

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, runUntilExhausted(t, a, conn))
	require.NoError(t, a.Close())

	rows := readRows(t, a.Outputs()[0], GSRHeader)
	require.Len(t, rows, 1)
	assert.Equal(t, "1800", rows[0][1])
}

func TestGSR_TransientErrorsContinue(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{
		{payload: le(2000)},
		{err: errMockRead},
		{payload: le(9999)}, // out of range
		{payload: nil},      // short
		{payload: le(2100)},
	}
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{Address: "CC:DD", Interval: MinGSRInterval}, newGSROptions(t))

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, runUntilExhausted(t, a, conn))
	require.NoError(t, a.Close())

	rows := readRows(t, a.Outputs()[0], GSRHeader)
	require.Len(t, rows, 2)
	assert.Equal(t, "2000", rows[0][1])
	assert.Equal(t, "2100", rows[1][1])
	assert.Equal(t, uint64(3), a.Stats().TransientErrors)
}

func TestGSR_ConsecutiveErrorsAreLinkLost(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{{err: errMockRead}, {err: errMockRead}, {err: errMockRead}}
	opts := newGSROptions(t)
	opts.MaxConsecutiveErrors = 3
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{Address: "CC:DD", Interval: MinGSRInterval}, opts)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	err := a.Run(context.Background(), cancel.New())
	assert.True(t, errors.Is(err, ErrLinkLost), "error = %v", err)
	assert.Equal(t, 3, conn.Reads())
}

func TestGSR_DisconnectIsLinkLost(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.drop()
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{Address: "CC:DD"}, newGSROptions(t))
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	err := a.Run(context.Background(), cancel.New())
	assert.True(t, errors.Is(err, ErrLinkLost))
	assert.Zero(t, conn.Reads())
}

func TestGSR_PersistErrorIsFatal(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	conn.script = []readResult{{payload: le(2000)}, {payload: le(2000)}}
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{Address: "CC:DD", Interval: MinGSRInterval}, newGSROptions(t))
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	require.NoError(t, a.sink.Close())

	err := a.Run(context.Background(), cancel.New())
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, conn.Reads())
}

func TestGSR_ConnectFailureCreatesNoFile(t *testing.T) {
	opts := newGSROptions(t)
	a := NewGSR(&mockBLE{connectErr: errors.New("unreachable")}, GSRConfig{Address: "CC:DD"}, opts)

	err := a.Connect(context.Background())
	var cerr *ConnectError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "CC:DD", cerr.Target)

	_, statErr := os.Stat(opts.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGSR_StopLatency(t *testing.T) {
	conn := newMockConn(device.DefaultGSRCharacteristicUUID)
	for i := 0; i < 100; i++ {
		conn.script = append(conn.script, readResult{payload: le(2000)})
	}
	a := NewGSR(&mockBLE{conn: conn}, GSRConfig{Address: "CC:DD", Interval: MaxGSRInterval}, newGSROptions(t))
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	tok := cancel.New()
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), tok) }()

	require.Eventually(t, func() bool { return conn.Reads() >= 1 }, time.Second, 5*time.Millisecond)
	tok.Signal()
	readsAtSignal := conn.Reads()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not observe the stop signal")
	}
	assert.LessOrEqual(t, conn.Reads()-readsAtSignal, 1, "at most one iteration after stop")
}
