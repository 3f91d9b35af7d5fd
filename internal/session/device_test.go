package session

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gvcam/internal/gvcp"
)

// mockCamera is a loopback GVCP responder standing in for a real device,
// pre-seeded with a local: bootstrap XML so Device construction exercises
// the full load-XML-then-take-control path.
type mockCamera struct {
	conn *net.UDPConn
	regs map[uint32]uint32
	mem  map[uint32][]byte
}

func newMockCamera(t *testing.T) (*mockCamera, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	c := &mockCamera{conn: conn, regs: map[uint32]uint32{}, mem: map[uint32][]byte{}}

	url := make([]byte, gvcp.XMLURLSize)
	copy(url, []byte("local:genicam.xml;00002000;00000020"))
	c.mem[gvcp.RegFirstXMLURL] = url
	c.mem[0x2000] = []byte("<RegisterDescription/>")

	go c.serve()
	t.Cleanup(func() { conn.Close() })
	return c, conn.LocalAddr().String()
}

func (c *mockCamera) serve() {
	buf := make([]byte, 2048)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		c.handle(buf[:n], from)
	}
}

func (c *mockCamera) handle(cmd []byte, from *net.UDPAddr) {
	if len(cmd) < 8 {
		return
	}
	opcode := binary.BigEndian.Uint16(cmd[2:4])
	txnID := binary.BigEndian.Uint16(cmd[6:8])

	switch opcode {
	case 0x0080:
		addr := binary.BigEndian.Uint32(cmd[8:12])
		ack := make([]byte, 12)
		binary.BigEndian.PutUint16(ack[2:4], 0x0081)
		binary.BigEndian.PutUint16(ack[6:8], txnID)
		binary.BigEndian.PutUint32(ack[8:12], c.regs[addr])
		c.conn.WriteToUDP(ack, from)
	case 0x0082:
		addr := binary.BigEndian.Uint32(cmd[8:12])
		val := binary.BigEndian.Uint32(cmd[12:16])
		c.regs[addr] = val
		ack := make([]byte, 8)
		binary.BigEndian.PutUint16(ack[2:4], 0x0083)
		binary.BigEndian.PutUint16(ack[6:8], txnID)
		c.conn.WriteToUDP(ack, from)
	case 0x0084:
		addr := binary.BigEndian.Uint32(cmd[8:12])
		count := binary.BigEndian.Uint32(cmd[12:16])
		src := c.mem[addr]
		payload := make([]byte, count)
		copy(payload, src)
		ack := make([]byte, 12+int(count))
		binary.BigEndian.PutUint16(ack[2:4], 0x0085)
		binary.BigEndian.PutUint16(ack[6:8], txnID)
		copy(ack[12:], payload)
		c.conn.WriteToUDP(ack, from)
	case 0x0086:
		addr := binary.BigEndian.Uint32(cmd[8:12])
		count := binary.BigEndian.Uint32(cmd[12:16])
		data := make([]byte, count)
		copy(data, cmd[16:16+int(count)])
		c.mem[addr] = data
		ack := make([]byte, 12)
		binary.BigEndian.PutUint16(ack[2:4], 0x0087)
		binary.BigEndian.PutUint16(ack[6:8], txnID)
		c.conn.WriteToUDP(ack, from)
	}
}

func TestNewTakesControlAndLoadsXML(t *testing.T) {
	_, addr := newMockCamera(t)

	dev, err := New(addr, Config{AckTimeoutMS: 200, HeartbeatPeriodMS: 20})
	require.NoError(t, err)
	defer dev.Close()

	assert.True(t, dev.IsController(), "expected IsController()=true after construction")
	// The local: URL names 0x20 bytes: the 22-byte blob, zero fill, and a
	// final byte forced to NUL.
	assert.Equal(t, "<RegisterDescription/>\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", string(dev.XML()))
}

func TestCloseReleasesControlPrivilege(t *testing.T) {
	cam, addr := newMockCamera(t)

	dev, err := New(addr, Config{AckTimeoutMS: 200, HeartbeatPeriodMS: 20})
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	assert.Equal(t, uint32(gvcp.PrivilegeNone), cam.regs[gvcp.RegControlChannelPrivilege])
}

func TestReadWriteMemoryFragmentsLargeTransfers(t *testing.T) {
	_, addr := newMockCamera(t)
	dev, err := New(addr, Config{AckTimeoutMS: 200, HeartbeatPeriodMS: 50})
	require.NoError(t, err)
	defer dev.Close()

	size := int(gvcp.DataSizeMax)*2 + 17
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}

	require.NoError(t, dev.WriteMemory(0x5000, data))
	got, err := dev.ReadMemory(0x5000, uint32(size))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestHeartbeatKeepsRunningAcrossRequests(t *testing.T) {
	_, addr := newMockCamera(t)
	dev, err := New(addr, Config{AckTimeoutMS: 200, HeartbeatPeriodMS: 10})
	require.NoError(t, err)
	defer dev.Close()

	time.Sleep(40 * time.Millisecond)
	_, err = dev.ReadRegister(gvcp.RegControlChannelPrivilege)
	assert.NoError(t, err, "ReadRegister after heartbeat activity")
}
