package sim

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/device"
)

func TestBLE_HeartRateNotifications(t *testing.T) {
	client := NewBLE(NewHeartRateMonitor("AA:BB", 5*time.Millisecond, 1))

	conn, err := client.Connect(context.Background(), "AA:BB")
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.HasCharacteristic(device.HeartRateMeasurementUUID))

	got := make(chan []byte, 16)
	require.NoError(t, conn.Subscribe(context.Background(), device.HeartRateMeasurementUUID, func(p []byte) {
		select {
		case got <- p:
		default:
		}
	}))

	select {
	case p := <-got:
		bpm, err := biometrics.DecodeHeartRate(p)
		require.NoError(t, err)
		assert.InDelta(t, 72, bpm, 30)
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestBLE_GSRRead(t *testing.T) {
	for _, ascii := range []bool{false, true} {
		client := NewBLE(NewGSRSensor("CC:DD", ascii, 7))
		conn, err := client.Connect(context.Background(), "CC:DD")
		require.NoError(t, err)

		payload, err := conn.ReadCharacteristic(context.Background(), device.DefaultGSRCharacteristicUUID)
		require.NoError(t, err)

		format := biometrics.PayloadLE
		if ascii {
			format = biometrics.PayloadASCII
		}
		adc, err := biometrics.DecodeADC(payload, format)
		require.NoError(t, err)
		assert.Greater(t, adc, 0)
		assert.Less(t, adc, 4095)

		_, err = conn.ReadCharacteristic(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNoCharacteristic)
		require.NoError(t, conn.Close())
	}
}

func TestBLE_ConnectFailures(t *testing.T) {
	p := NewGSRSensor("EE:FF", false, 1)
	p.Unreachable = true
	client := NewBLE(p)

	_, err := client.Connect(context.Background(), "00:00")
	assert.ErrorIs(t, err, ErrPeripheralNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = client.Connect(ctx, "EE:FF")
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBLE_DropAfter(t *testing.T) {
	p := NewGSRSensor("EE:FF", false, 1)
	p.DropAfter = 10 * time.Millisecond
	conn, err := NewBLE(p).Connect(context.Background(), "EE:FF")
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-conn.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("link did not drop")
	}
	_, err = conn.ReadCharacteristic(context.Background(), device.DefaultGSRCharacteristicUUID)
	assert.ErrorIs(t, err, ErrLinkDown)
}

func TestBLE_Scan(t *testing.T) {
	client := NewBLE(NewHeartRateMonitor("AA", time.Second, 1), NewGSRSensor("BB", false, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ads, err := client.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, ads, 2)
}

func TestBoard_BufferedSamples(t *testing.T) {
	drv := NewBoardDriver()
	b, err := drv.OpenSession(context.Background(), device.BoardConfig{Board: "sim"})
	require.NoError(t, err)
	defer b.CloseSession()

	_, err = b.BufferedSamples()
	assert.ErrorIs(t, err, ErrStreamNotStarted)

	require.NoError(t, b.StartStream())
	time.Sleep(50 * time.Millisecond)

	rows, err := b.BufferedSamples()
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	layout := b.Layout()
	for i, r := range rows {
		assert.Len(t, r.EEG, layout.EEG)
		assert.Len(t, r.Accel, layout.Accel)
		assert.Len(t, r.Other, layout.Other)
		if i > 0 {
			assert.GreaterOrEqual(t, r.Timestamp, rows[i-1].Timestamp)
		}
	}

	require.NoError(t, b.CloseSession())
	_, err = b.BufferedSamples()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestBoard_Unavailable(t *testing.T) {
	drv := &BoardDriver{Unavailable: true}
	_, err := drv.OpenSession(context.Background(), device.BoardConfig{Board: "cyton"})
	assert.ErrorIs(t, err, ErrBoardUnavailable)
}

func TestFrameSource_OpenAndEOF(t *testing.T) {
	src := &FrameSource{Indices: []int{1}, Backends: []string{"v4l2"}, FPS: 200, MaxFrames: 3}

	_, err := src.Open(context.Background(), device.CaptureConfig{Index: 0})
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	_, err = src.Open(context.Background(), device.CaptureConfig{Index: 1, Backend: "dshow"})
	assert.ErrorIs(t, err, ErrCameraUnavailable)

	cam, err := src.Open(context.Background(), device.CaptureConfig{Index: 1, Backend: "v4l2", Width: 32, Height: 24})
	require.NoError(t, err)
	defer cam.Release()

	w, h, fps := cam.Format()
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, h)
	assert.Equal(t, 200.0, fps)

	for i := 1; i <= 3; i++ {
		f, err := cam.ReadFrame(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.Seq)
		assert.Equal(t, 32, f.Image.Bounds().Dx())
	}
	_, err = cam.ReadFrame(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestFrameSource_Probe(t *testing.T) {
	src := &FrameSource{Indices: []int{0, 2}, FPS: 30}

	infos := src.Probe(context.Background(), []int{0, 1, 2})
	require.Len(t, infos, 3)
	assert.True(t, infos[0].OK)
	assert.False(t, infos[1].OK)
	assert.NotEmpty(t, infos[1].Err)
	assert.True(t, infos[2].OK)
}

func TestPoseEstimator_Blink(t *testing.T) {
	p := &PoseEstimator{BlinkEvery: 10, NoFaceEvery: 7}
	policy := biometrics.DefaultAttentionPolicy()

	obs, ok, err := p.Estimate(context.Background(), &device.Frame{Seq: 10})
	require.NoError(t, err)
	require.True(t, ok)
	ear := biometrics.MeanEAR(obs.LeftEye, obs.RightEye)
	assert.Less(t, ear, policy.EARThreshold)

	obs, ok, err = p.Estimate(context.Background(), &device.Frame{Seq: 15})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, biometrics.MeanEAR(obs.LeftEye, obs.RightEye), policy.EARThreshold)

	_, ok, err = p.Estimate(context.Background(), &device.Frame{Seq: 14})
	require.NoError(t, err)
	assert.False(t, ok)
}
