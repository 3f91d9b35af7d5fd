// Package session wires the GVCP IO channel, heartbeat task, and GenICam
// loader into a single device facade: construction brings the control
// channel up and takes control, teardown releases it in reverse order.
package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gvcam/internal/genicam"
	"gvcam/internal/gvcp"
	"gvcam/internal/heartbeat"
	"gvcam/internal/iochannel"
)

// Config holds the options recognized at session construction. Zero values
// are replaced by the defaults noted per field.
type Config struct {
	AckTimeoutMS     int // default 1000
	HeartbeatPeriodMS int // default 1000
	StreamPacketSize int // default 0x5dc (1500)
}

func (c Config) withDefaults() Config {
	if c.AckTimeoutMS <= 0 {
		c.AckTimeoutMS = int(iochannel.DefaultTimeout / time.Millisecond)
	}
	if c.HeartbeatPeriodMS <= 0 {
		c.HeartbeatPeriodMS = int(heartbeat.DefaultPeriod / time.Millisecond)
	}
	if c.StreamPacketSize <= 0 {
		c.StreamPacketSize = gvcp.DefaultStreamPacketSize
	}
	return c
}

// Stats holds cumulative transaction counters with internal synchronization.
type Stats struct {
	mu              sync.RWMutex
	TotalRequests   uint64
	TotalBytes      uint64
	ErrorCount      uint64
}

// StatsSnapshot is a copy of Stats taken without its mutex, safe to return
// to callers.
type StatsSnapshot struct {
	TotalRequests uint64
	TotalBytes    uint64
	ErrorCount    uint64
}

func (s *Stats) recordSuccess(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	s.TotalBytes += uint64(bytes)
}

func (s *Stats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	s.ErrorCount++
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		TotalRequests: s.TotalRequests,
		TotalBytes:    s.TotalBytes,
		ErrorCount:    s.ErrorCount,
	}
}

// Device is the control-channel facade for one camera: one IO channel, at
// most one heartbeat task, and an immutable, possibly-absent GenICam XML
// buffer loaded once at construction.
type Device struct {
	mu sync.RWMutex

	ch *iochannel.Channel
	hb *heartbeat.Task

	cfg          Config
	xml          []byte
	isController bool

	stats Stats
}

// New opens the control channel to deviceAddr, loads the GenICam XML,
// acquires control privilege, and starts the heartbeat. Construction fails
// only on socket errors; XML load failure is logged and tolerated, matching
// the reference client's non-fatal treatment of a missing bootstrap XML. A
// failed take-control write is logged too: the session is returned with
// IsController reporting false, and the heartbeat is started regardless.
func New(deviceAddr string, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()

	ch, err := iochannel.New(deviceAddr)
	if err != nil {
		return nil, fmt.Errorf("session: open control channel to %s: %w", deviceAddr, err)
	}
	ch.SetTimeout(time.Duration(cfg.AckTimeoutMS) * time.Millisecond)

	d := &Device{ch: ch, cfg: cfg}

	xml, err := genicam.LoadFirstOrSecond(d)
	if err != nil {
		log.Printf("session: genicam xml load failed, proceeding without a feature tree: %v", err)
	} else {
		d.xml = xml
	}

	if err := ch.WriteRegister(gvcp.RegControlChannelPrivilege, gvcp.PrivilegeControl); err != nil {
		log.Printf("session: take control of %s failed, proceeding without control privilege: %v", deviceAddr, err)
	} else {
		d.isController = true
	}

	d.hb = heartbeat.Start(ch, gvcp.RegControlChannelPrivilege, time.Duration(cfg.HeartbeatPeriodMS)*time.Millisecond)

	return d, nil
}

// Close tears the session down in the reverse of construction order:
// cancel+join the heartbeat, release control privilege, close the socket.
// It always attempts every step even if an earlier one fails.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hb != nil {
		d.hb.Cancel()
		d.hb = nil
	}

	var releaseErr error
	if d.isController {
		releaseErr = d.ch.WriteRegister(gvcp.RegControlChannelPrivilege, gvcp.PrivilegeNone)
		d.isController = false
	}

	closeErr := d.ch.Close()

	if releaseErr != nil {
		return fmt.Errorf("session: release control privilege: %w", releaseErr)
	}
	if closeErr != nil {
		return fmt.Errorf("session: close control channel: %w", closeErr)
	}
	return nil
}

// XML returns the loaded GenICam XML buffer, or nil if the bootstrap load
// failed at construction.
func (d *Device) XML() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.xml
}

// IsController reports whether this session currently holds control
// privilege.
func (d *Device) IsController() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isController
}

// Stats returns a point-in-time copy of this session's transaction counters.
func (d *Device) Stats() StatsSnapshot {
	return d.stats.snapshot()
}

// ReadRegister reads the 32-bit register at address.
func (d *Device) ReadRegister(address uint32) (uint32, error) {
	v, err := d.ch.ReadRegister(address)
	if err != nil {
		d.stats.recordError()
		return 0, err
	}
	d.stats.recordSuccess(4)
	return v, nil
}

// WriteRegister stores value at address.
func (d *Device) WriteRegister(address, value uint32) error {
	if err := d.ch.WriteRegister(address, value); err != nil {
		d.stats.recordError()
		return err
	}
	d.stats.recordSuccess(4)
	return nil
}

// ReadMemory reads count bytes starting at address, fragmenting the
// transfer into gvcp.DataSizeMax-sized chunks at consecutive addresses.
// The operation succeeds only if every fragment succeeds; on failure the
// bytes successfully read so far are discarded.
func (d *Device) ReadMemory(address, count uint32) ([]byte, error) {
	out := make([]byte, 0, count)
	var off uint32
	for off < count {
		n := count - off
		if n > gvcp.DataSizeMax {
			n = gvcp.DataSizeMax
		}
		chunk, err := d.ch.ReadMemory(address+off, n)
		if err != nil {
			d.stats.recordError()
			return nil, fmt.Errorf("session: read memory fragment at offset %d of %d: %w", off, count, err)
		}
		out = append(out, chunk...)
		off += n
	}
	d.stats.recordSuccess(len(out))
	return out, nil
}

// WriteMemory writes data starting at address, fragmenting the transfer
// into gvcp.DataSizeMax-sized chunks. The operation succeeds only if every
// fragment succeeds.
func (d *Device) WriteMemory(address uint32, data []byte) error {
	var off uint32
	total := uint32(len(data))
	for off < total {
		n := total - off
		if n > gvcp.DataSizeMax {
			n = gvcp.DataSizeMax
		}
		if err := d.ch.WriteMemory(address+off, data[off:off+n]); err != nil {
			d.stats.recordError()
			return fmt.Errorf("session: write memory fragment at offset %d of %d: %w", off, total, err)
		}
		off += n
	}
	d.stats.recordSuccess(len(data))
	return nil
}
