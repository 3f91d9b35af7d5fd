// Package gvcp implements the GigE Vision Control Protocol wire codec:
// building command frames and parsing ack frames for the register/memory
// read and write operations.
package gvcp

// Bootstrap register addresses. These are fixed, protocol-defined offsets
// into every device's register space; a client must know them before it
// has any other information about the device.
const (
	GVCPPort = 3956

	RegControlChannelPrivilege = 0x0a00

	RegFirstXMLURL  = 0x0200
	RegSecondXMLURL = 0x0400
	XMLURLSize      = 512

	RegFirstStreamChannelPacketSize = 0x0d04
	RegFirstStreamChannelIPAddress  = 0x0d18
	RegFirstStreamChannelPort       = 0x0d1c

	// DataSizeMax is the largest memory payload a single GVCP command may
	// carry. Transfers larger than this are fragmented by the session
	// facade into consecutive DataSizeMax-sized (or smaller, for the
	// final fragment) transactions.
	DataSizeMax = 536

	// PrivilegeControl and PrivilegeNone are the only two values the
	// control channel privilege register is written with by this client.
	PrivilegeControl = 2
	PrivilegeNone    = 0

	// DefaultStreamPacketSize is written to FIRST_STREAM_CHANNEL_PACKET_SIZE
	// when a stream channel is created.
	DefaultStreamPacketSize = 0x5dc
)
