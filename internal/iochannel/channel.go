// Package iochannel implements the mutex-serialized request/response
// transaction loop over the GVCP control socket: build a command, send it,
// and wait once for its matching ack within a deadline. A timeout fails
// the call; it is not retried internally.
package iochannel

import (
	"fmt"
	"net"
	"sync"
	"time"

	"gvcam/internal/gvcp"
)

// DefaultTimeout is the deadline a single request/response round trip is
// allowed before it fails. There is no internal retry: a timeout is
// returned to the caller, who may retry if it wants to.
const DefaultTimeout = 1000 * time.Millisecond

// Channel serializes GVCP transactions over a single UDP socket to one
// device. Only one transaction may be in flight at a time; concurrent
// callers block on mu until their turn.
type Channel struct {
	mu   sync.Mutex
	conn *net.UDPConn
	addr *net.UDPAddr

	nextID  uint32
	timeout time.Duration

	buf [gvcp.DataSizeMax + 64]byte
}

// New dials a UDP socket bound to the device at addr (host:3956 form, or
// host — GVCPPort is implied when no port is given) and returns a ready
// Channel.
func New(addr string) (*Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", withPort(addr))
	if err != nil {
		return nil, fmt.Errorf("iochannel: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("iochannel: dial %s: %w", addr, err)
	}
	return &Channel{
		conn:    conn,
		addr:    udpAddr,
		timeout: DefaultTimeout,
	}, nil
}

func withPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return fmt.Sprintf("%s:%d", addr, gvcp.GVCPPort)
}

// SetTimeout overrides the per-attempt deadline used by every transaction.
func (c *Channel) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// nextTxnID returns the next transaction id, wrapping at 16 bits like the
// wire field it fills. Callers must hold c.mu: allocating the id and
// sending the command it labels happen atomically with respect to every
// other transaction, so ids reach the wire in strictly increasing order.
func (c *Channel) nextTxnID() uint16 {
	c.nextID++
	return uint16(c.nextID)
}

// transact builds a command around a freshly allocated transaction id,
// sends it once, and waits for its matching ack within the deadline. There
// is no internal retry: a single timeout fails the call, per the
// single-attempt-per-request contract this channel offers; callers that
// want a retry issue another transaction themselves. build receives the
// transaction id to embed in the command it constructs. validate is
// called on each received datagram; it returns ok=false for acks that
// don't belong to this transaction or can't be accepted (mismatched id,
// non-success status, or too short), in which case transact keeps
// listening within the same deadline rather than treating it as the reply.
func (c *Channel) transact(build func(id uint16) []byte, validate func(buf []byte, id uint16) (ok bool)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextTxnID()
	cmd := build(id)

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("iochannel: set deadline: %w", err)
	}
	if _, err := c.conn.Write(cmd); err != nil {
		return nil, fmt.Errorf("iochannel: send: %w", err)
	}

	for {
		n, err := c.conn.Read(c.buf[:])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, fmt.Errorf("iochannel: no ack: %w", err)
			}
			return nil, fmt.Errorf("iochannel: receive: %w", err)
		}
		reply := make([]byte, n)
		copy(reply, c.buf[:n])
		if validate(reply, id) {
			return reply, nil
		}
		// Stray ack for a prior, already-abandoned transaction: keep
		// listening within the same deadline.
	}
}

// ReadRegister reads the 32-bit value at address.
func (c *Channel) ReadRegister(address uint32) (uint32, error) {
	var value uint32
	_, err := c.transact(
		func(id uint16) []byte { return gvcp.BuildReadRegisterCmd(address, id) },
		func(buf []byte, id uint16) bool {
			v, ok := gvcp.ReadRegisterAckValue(buf, id)
			value = v
			return ok
		},
	)
	if err != nil {
		return 0, fmt.Errorf("iochannel: read register 0x%04x: %w", address, err)
	}
	return value, nil
}

// WriteRegister stores value at address.
func (c *Channel) WriteRegister(address, value uint32) error {
	_, err := c.transact(
		func(id uint16) []byte { return gvcp.BuildWriteRegisterCmd(address, value, id) },
		func(buf []byte, id uint16) bool { return gvcp.WriteRegisterAckOK(buf, id) },
	)
	if err != nil {
		return fmt.Errorf("iochannel: write register 0x%04x: %w", address, err)
	}
	return nil
}

// ReadMemory reads count bytes starting at address. count must not exceed
// gvcp.DataSizeMax; callers needing larger transfers fragment at a higher
// layer.
func (c *Channel) ReadMemory(address, count uint32) ([]byte, error) {
	var data []byte
	_, err := c.transact(
		func(id uint16) []byte { return gvcp.BuildReadMemoryCmd(address, count, id) },
		func(buf []byte, id uint16) bool {
			d, ok := gvcp.ReadMemoryAckData(buf, id, count)
			data = d
			return ok
		},
	)
	if err != nil {
		return nil, fmt.Errorf("iochannel: read memory 0x%04x (%d bytes): %w", address, count, err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteMemory writes data starting at address.
func (c *Channel) WriteMemory(address uint32, data []byte) error {
	_, err := c.transact(
		func(id uint16) []byte { return gvcp.BuildWriteMemoryCmd(address, data, id) },
		func(buf []byte, id uint16) bool { return gvcp.WriteMemoryAckOK(buf, id) },
	)
	if err != nil {
		return fmt.Errorf("iochannel: write memory 0x%04x (%d bytes): %w", address, len(data), err)
	}
	return nil
}
