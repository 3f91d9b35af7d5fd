package gvcp

import "encoding/binary"

// Command and ack opcodes. Ack opcodes are their command counterparts with
// the low bit set, matching the GVCP convention of pairing a command with
// its acknowledge.
const (
	opReadMemoryCmd  uint16 = 0x0084
	opReadMemoryAck  uint16 = 0x0085
	opWriteMemoryCmd uint16 = 0x0086
	opWriteMemoryAck uint16 = 0x0087

	opReadRegisterCmd  uint16 = 0x0080
	opReadRegisterAck  uint16 = 0x0081
	opWriteRegisterCmd uint16 = 0x0082
	opWriteRegisterAck uint16 = 0x0083

	// commandKey is the fixed first byte of every command packet's header.
	commandKey uint8 = 0x42

	// headerSize is the length, in bytes, of the common header that
	// precedes every command and every ack payload.
	headerSize = 8

	statusSuccess uint16 = 0x0000
)

// alignUp4 rounds n up to the next multiple of 4, the alignment GVCP
// requires of every memory payload.
func alignUp4(n uint32) uint32 {
	return (n + 3) &^ 3
}

func putHeaderCmd(buf []byte, opcode uint16, size uint16, txnID uint16) {
	buf[0] = commandKey
	buf[1] = 0 // flags: acknowledge requested is implicit for every command this client sends
	binary.BigEndian.PutUint16(buf[2:4], opcode)
	binary.BigEndian.PutUint16(buf[4:6], size)
	binary.BigEndian.PutUint16(buf[6:8], txnID)
}

// ackHeader is the common header every ack carries.
type ackHeader struct {
	status uint16
	opcode uint16
	size   uint16
	txnID  uint16
}

func parseAckHeader(buf []byte) (ackHeader, bool) {
	if len(buf) < headerSize {
		return ackHeader{}, false
	}
	return ackHeader{
		status: binary.BigEndian.Uint16(buf[0:2]),
		opcode: binary.BigEndian.Uint16(buf[2:4]),
		size:   binary.BigEndian.Uint16(buf[4:6]),
		txnID:  binary.BigEndian.Uint16(buf[6:8]),
	}, true
}

// BuildReadMemoryCmd builds a read_memory command requesting count bytes
// (rounded up to a multiple of 4 on the wire) starting at address.
func BuildReadMemoryCmd(address, count uint32, txnID uint16) []byte {
	aligned := alignUp4(count)
	buf := make([]byte, headerSize+8)
	putHeaderCmd(buf, opReadMemoryCmd, 8, txnID)
	binary.BigEndian.PutUint32(buf[headerSize:headerSize+4], address)
	binary.BigEndian.PutUint32(buf[headerSize+4:headerSize+8], aligned)
	return buf
}

// AckSizeForReadMemory returns the expected size of a read_memory ack
// carrying count bytes of payload (count is rounded up to a multiple of 4,
// matching what the device actually returns on the wire).
func AckSizeForReadMemory(count uint32) int {
	return headerSize + 4 + int(alignUp4(count))
}

// ReadMemoryAckData validates buf as a read_memory ack for the given
// transaction and returns the data payload (exactly count bytes, not the
// wire-aligned count). ok is false if the ack is short, malformed, carries
// a non-success status, or does not match txnID.
func ReadMemoryAckData(buf []byte, txnID uint16, count uint32) (data []byte, ok bool) {
	h, valid := parseAckHeader(buf)
	if !valid || h.txnID != txnID || h.status != statusSuccess {
		return nil, false
	}
	want := AckSizeForReadMemory(count)
	if len(buf) < want {
		return nil, false
	}
	return buf[headerSize+4 : headerSize+4+int(count)], true
}

// BuildWriteMemoryCmd builds a write_memory command writing data starting
// at address. data is zero-padded up to the next multiple of 4 on the wire;
// the caller's slice is never mutated.
func BuildWriteMemoryCmd(address uint32, data []byte, txnID uint16) []byte {
	aligned := alignUp4(uint32(len(data)))
	buf := make([]byte, headerSize+8+int(aligned))
	putHeaderCmd(buf, opWriteMemoryCmd, uint16(8+aligned), txnID)
	binary.BigEndian.PutUint32(buf[headerSize:headerSize+4], address)
	binary.BigEndian.PutUint32(buf[headerSize+4:headerSize+8], aligned)
	copy(buf[headerSize+8:], data)
	return buf
}

// AckSizeForWriteMemory is the fixed size of a write_memory ack.
func AckSizeForWriteMemory() int {
	return headerSize + 4
}

// WriteMemoryAckOK validates buf as a successful write_memory ack for txnID.
func WriteMemoryAckOK(buf []byte, txnID uint16) bool {
	h, valid := parseAckHeader(buf)
	if !valid || h.txnID != txnID || h.status != statusSuccess {
		return false
	}
	return len(buf) >= AckSizeForWriteMemory()
}

// BuildReadRegisterCmd builds a read_register command for address.
func BuildReadRegisterCmd(address uint32, txnID uint16) []byte {
	buf := make([]byte, headerSize+4)
	putHeaderCmd(buf, opReadRegisterCmd, 4, txnID)
	binary.BigEndian.PutUint32(buf[headerSize:headerSize+4], address)
	return buf
}

// AckSizeForReadRegister is the fixed size of a read_register ack.
func AckSizeForReadRegister() int {
	return headerSize + 4
}

// ReadRegisterAckValue validates buf as a read_register ack for txnID and
// returns the register's value.
func ReadRegisterAckValue(buf []byte, txnID uint16) (value uint32, ok bool) {
	h, valid := parseAckHeader(buf)
	if !valid || h.txnID != txnID || h.status != statusSuccess {
		return 0, false
	}
	if len(buf) < AckSizeForReadRegister() {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[headerSize : headerSize+4]), true
}

// BuildWriteRegisterCmd builds a write_register command storing value at
// address.
func BuildWriteRegisterCmd(address, value uint32, txnID uint16) []byte {
	buf := make([]byte, headerSize+8)
	putHeaderCmd(buf, opWriteRegisterCmd, 8, txnID)
	binary.BigEndian.PutUint32(buf[headerSize:headerSize+4], address)
	binary.BigEndian.PutUint32(buf[headerSize+4:headerSize+8], value)
	return buf
}

// AckSizeForWriteRegister is the fixed size of a write_register ack.
func AckSizeForWriteRegister() int {
	return headerSize
}

// WriteRegisterAckOK validates buf as a successful write_register ack for
// txnID.
func WriteRegisterAckOK(buf []byte, txnID uint16) bool {
	h, valid := parseAckHeader(buf)
	if !valid || h.txnID != txnID || h.status != statusSuccess {
		return false
	}
	return len(buf) >= AckSizeForWriteRegister()
}
