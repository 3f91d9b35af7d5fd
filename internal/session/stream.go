package session

import (
	"fmt"
	"net"

	"gvcam/internal/gvcp"
)

// StreamChannel is a local UDP receiver registered with the device as the
// destination for one image-data stream channel. Packet reassembly itself
// is out of scope here; this type only owns the socket and the port the
// device was told to target.
type StreamChannel struct {
	conn *net.UDPConn
	port uint16
}

// Port returns the local UDP port the device sends stream data to.
func (s *StreamChannel) Port() uint16 { return s.port }

// Conn returns the underlying socket for a packet-reassembly layer to read
// from. The facade retains no reference to it after CreateStream returns.
func (s *StreamChannel) Conn() *net.UDPConn { return s.conn }

// Close releases the local socket.
func (s *StreamChannel) Close() error { return s.conn.Close() }

// CreateStream allocates a local UDP socket on localIface, then configures
// the device's first stream channel to target it: packet size (register),
// local IPv4 address (memory — the device addresses this field by a
// memory, not register, opcode), and port (register), in that order,
// reading the port register back to confirm. The returned StreamChannel is
// owned by the caller; the facade keeps no reference to it.
func (d *Device) CreateStream(localIface net.IP) (*StreamChannel, error) {
	ip4 := localIface.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("session: create stream: %v is not an IPv4 address", localIface)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip4})
	if err != nil {
		return nil, fmt.Errorf("session: create stream: listen: %w", err)
	}
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	if err := d.WriteRegister(gvcp.RegFirstStreamChannelPacketSize, uint32(d.cfg.StreamPacketSize)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: create stream: set packet size: %w", err)
	}

	if err := d.WriteMemory(gvcp.RegFirstStreamChannelIPAddress, ip4); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: create stream: set ip address: %w", err)
	}

	if err := d.WriteRegister(gvcp.RegFirstStreamChannelPort, uint32(port)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: create stream: set port: %w", err)
	}

	confirmed, err := d.ReadRegister(gvcp.RegFirstStreamChannelPort)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: create stream: confirm port: %w", err)
	}
	if uint16(confirmed) != port {
		conn.Close()
		return nil, fmt.Errorf("session: create stream: device reports port %d, expected %d", confirmed, port)
	}

	return &StreamChannel{conn: conn, port: port}, nil
}
