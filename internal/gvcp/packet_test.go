package gvcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRegisterRoundTrip(t *testing.T) {
	cmd := BuildReadRegisterCmd(RegControlChannelPrivilege, 7)
	require.Len(t, cmd, headerSize+4)

	ack := make([]byte, headerSize+4)
	ack[1] = byte(opReadRegisterAck >> 8)
	ack[3] = byte(opReadRegisterAck)
	ack[6] = 0
	ack[7] = 7
	ack[headerSize+3] = 2 // value = 2 (PrivilegeControl)

	value, ok := ReadRegisterAckValue(ack, 7)
	require.True(t, ok)
	assert.EqualValues(t, PrivilegeControl, value)
}

func TestReadRegisterAckWrongTxnID(t *testing.T) {
	ack := make([]byte, headerSize+4)
	ack[7] = 9
	_, ok := ReadRegisterAckValue(ack, 7)
	assert.False(t, ok, "expected ok=false for mismatched transaction id")
}

func TestReadRegisterAckNonSuccessStatus(t *testing.T) {
	ack := make([]byte, headerSize+4)
	ack[0] = 0x80 // nonzero status
	ack[7] = 7
	_, ok := ReadRegisterAckValue(ack, 7)
	assert.False(t, ok, "expected ok=false for non-success status")
}

func TestWriteRegisterCmdEncoding(t *testing.T) {
	cmd := BuildWriteRegisterCmd(0x0a00, 2, 3)
	require.Len(t, cmd, headerSize+8)
	assert.Equal(t, commandKey, cmd[0])
}

func TestWriteRegisterAckOK(t *testing.T) {
	ack := make([]byte, headerSize)
	ack[7] = 3
	assert.True(t, WriteRegisterAckOK(ack, 3))
	assert.False(t, WriteRegisterAckOK(ack, 4), "expected ack to fail for mismatched transaction id")
}

func TestReadMemoryCmdAlignsCount(t *testing.T) {
	cmd := BuildReadMemoryCmd(0x0200, 9, 1)
	count := uint32(cmd[headerSize+4])<<24 | uint32(cmd[headerSize+5])<<16 | uint32(cmd[headerSize+6])<<8 | uint32(cmd[headerSize+7])
	assert.EqualValues(t, 12, count)
}

func TestReadMemoryAckDataRoundTrip(t *testing.T) {
	payload := []byte("local:bootstrap.xml")
	want := AckSizeForReadMemory(uint32(len(payload)))
	ack := make([]byte, want)
	ack[7] = 5
	copy(ack[headerSize+4:], payload)

	data, ok := ReadMemoryAckData(ack, 5, uint32(len(payload)))
	require.True(t, ok)
	assert.Equal(t, payload, data)
}

func TestReadMemoryAckShortBufferFails(t *testing.T) {
	ack := make([]byte, headerSize+2)
	ack[7] = 1
	_, ok := ReadMemoryAckData(ack, 1, 4)
	assert.False(t, ok, "expected ok=false for short ack buffer")
}

func TestWriteMemoryCmdPadsData(t *testing.T) {
	cmd := BuildWriteMemoryCmd(0x1000, []byte{1, 2, 3}, 1)
	require.Len(t, cmd, headerSize+8+4)
	assert.Zero(t, cmd[len(cmd)-1], "expected zero padding in final byte")
}

func TestWriteMemoryAckOK(t *testing.T) {
	ack := make([]byte, AckSizeForWriteMemory())
	ack[7] = 42
	assert.True(t, WriteMemoryAckOK(ack, 42))
}
