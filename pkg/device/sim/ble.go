// Package sim provides simulated device collaborators so that a complete
// recording session can run without hardware. The simulations generate
// plausible signals (a heart rate random walk, a skin conductance baseline
// with occasional responses, multi-channel EEG sinusoids, a moving test
// pattern on camera) and can be told to fail in the ways real devices do:
// unreachable on connect, missing characteristics, link drops mid-stream.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/device"
)

// Errors returned by the simulated BLE stack.
var (
	ErrPeripheralNotFound = errors.New("peripheral not found")
	ErrUnreachable        = errors.New("peripheral unreachable")
	ErrNoCharacteristic   = errors.New("characteristic not found")
	ErrLinkDown           = errors.New("link down")
)

// Notifier periodically produces notification payloads.
type Notifier struct {
	Interval time.Duration
	Next     func() []byte
}

// Peripheral is a simulated BLE device.
type Peripheral struct {
	Address string
	Name    string
	RSSI    int

	// Readable characteristics, by UUID.
	Read map[string]func() ([]byte, error)

	// Notifying characteristics, by UUID.
	Notify map[string]Notifier

	// Unreachable makes Connect block until its context is done.
	Unreachable bool

	// DropAfter, if positive, drops the link that long after connecting.
	DropAfter time.Duration
}

// BLE is a simulated BLE client holding a set of peripherals.
type BLE struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
}

// NewBLE creates a client that can see the given peripherals.
func NewBLE(peripherals ...*Peripheral) *BLE {
	b := &BLE{peripherals: make(map[string]*Peripheral)}
	for _, p := range peripherals {
		b.Add(p)
	}
	return b
}

// Add registers a peripheral.
func (b *BLE) Add(p *Peripheral) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peripherals[p.Address] = p
}

// Connect implements device.BLEClient.Connect.
func (b *BLE) Connect(ctx context.Context, address string) (device.BLEConn, error) {
	b.mu.Lock()
	p, ok := b.peripherals[address]
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeripheralNotFound, address)
	}
	if p.Unreachable {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, address, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &bleConn{
		p:            p,
		disconnected: make(chan struct{}),
	}
	if p.DropAfter > 0 {
		c.dropTimer = time.AfterFunc(p.DropAfter, c.drop)
	}
	return c, nil
}

// Scan implements device.BLEClient.Scan.
func (b *BLE) Scan(ctx context.Context) ([]device.Advertisement, error) {
	b.mu.Lock()
	ads := make([]device.Advertisement, 0, len(b.peripherals))
	for _, p := range b.peripherals {
		ads = append(ads, device.Advertisement{Address: p.Address, Name: p.Name, RSSI: p.RSSI})
	}
	b.mu.Unlock()

	// A real scan listens for the whole window.
	<-ctx.Done()
	return ads, nil
}

type bleConn struct {
	p            *Peripheral
	mu           sync.Mutex
	closed       bool
	dropOnce     sync.Once
	disconnected chan struct{}
	dropTimer    *time.Timer
	wg           sync.WaitGroup
}

func (c *bleConn) drop() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}

func (c *bleConn) HasCharacteristic(uuid string) bool {
	if _, ok := c.p.Read[uuid]; ok {
		return true
	}
	_, ok := c.p.Notify[uuid]
	return ok
}

func (c *bleConn) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	select {
	case <-c.disconnected:
		return nil, ErrLinkDown
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	read, ok := c.p.Read[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCharacteristic, uuid)
	}
	return read()
}

func (c *bleConn) Subscribe(ctx context.Context, uuid string, fn func([]byte)) error {
	n, ok := c.p.Notify[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCharacteristic, uuid)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(n.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.disconnected:
				return
			case <-ticker.C:
				fn(n.Next())
			}
		}
	}()
	return nil
}

func (c *bleConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *bleConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.dropTimer != nil {
		c.dropTimer.Stop()
	}
	c.drop()
	c.wg.Wait()
	return nil
}

// lockedRand is a seeded generator shared by notification goroutines.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newRand(seed uint64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.NormFloat64()
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewHeartRateMonitor returns a peripheral that notifies Heart Rate
// Measurement payloads once per interval, following a bounded random walk
// around 72 BPM.
func NewHeartRateMonitor(address string, interval time.Duration, seed uint64) *Peripheral {
	rng := newRand(seed)
	var mu sync.Mutex
	bpm := 72.0

	next := func() []byte {
		mu.Lock()
		defer mu.Unlock()
		bpm += rng.NormFloat64() * 1.5
		bpm = math.Max(45, math.Min(180, bpm))
		v := uint16(math.Round(bpm))
		if v > 0xff {
			out := []byte{0x01, 0, 0}
			binary.LittleEndian.PutUint16(out[1:], v)
			return out
		}
		return []byte{0x00, byte(v)}
	}

	return &Peripheral{
		Address: address,
		Name:    "Polar H10 (sim)",
		RSSI:    -58,
		Notify: map[string]Notifier{
			device.HeartRateMeasurementUUID: {Interval: interval, Next: next},
		},
	}
}

// NewGSRSensor returns a peripheral exposing a readable GSR characteristic.
// Readings hover around a baseline ADC value with occasional phasic
// responses. ascii selects decimal text payloads instead of little-endian.
func NewGSRSensor(address string, ascii bool, seed uint64) *Peripheral {
	rng := newRand(seed)
	var mu sync.Mutex
	level := 2000.0
	response := 0.0

	read := func() ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()

		if rng.Float64() < 0.02 {
			response = 60 + rng.Float64()*80
		}
		response *= 0.85
		level += rng.NormFloat64() * 2
		adc := int(math.Round(math.Max(1, math.Min(4094, level-response))))

		if ascii {
			return []byte(fmt.Sprintf("%d", adc)), nil
		}
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(adc))
		return out, nil
	}

	return &Peripheral{
		Address: address,
		Name:    "ESP32 GSR (sim)",
		RSSI:    -64,
		Read: map[string]func() ([]byte, error){
			device.DefaultGSRCharacteristicUUID: read,
		},
	}
}
