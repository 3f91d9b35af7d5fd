//go:build linux

// Package netdiag provides an optional, diagnostics-only counter of GVCP
// traffic seen on a network interface. It never sits in the hot path of an
// IO channel transaction; it is attached once and read asynchronously.
package netdiag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// packetEvent is emitted by the XDP program for each GVCP datagram it
// classifies on the attached interface.
type packetEvent struct {
	Kind uint32 // 0 = command, 1 = ack, 2 = malformed
	Size uint32
}

const (
	kindCommand   uint32 = 0
	kindAck       uint32 = 1
	kindMalformed uint32 = 2
)

// bpfObjects holds the programs and maps the XDP filter needs.
type bpfObjects struct {
	XdpFilterGVCP *ebpf.Program `ebpf:"xdp_filter_gvcp"`
	PacketEvents  *ebpf.Map     `ebpf:"packet_events"`
}

func (o *bpfObjects) Close() error {
	if o.XdpFilterGVCP != nil {
		o.XdpFilterGVCP.Close()
	}
	if o.PacketEvents != nil {
		o.PacketEvents.Close()
	}
	return nil
}

// loadBpfObjects is a placeholder: no compiled XDP object ships with this
// client, so it loads nothing, returns nil, and leaves obj's program and
// map fields nil.
func loadBpfObjects(obj *bpfObjects, opts *ebpf.CollectionOptions) error {
	return nil
}

// SnifferCounts is a point-in-time copy of a Sniffer's counters.
type SnifferCounts struct {
	Commands  uint64
	Acks      uint64
	Malformed uint64
}

// Sniffer counts GVCP command/ack/malformed datagrams observed on one
// interface via an XDP program and a ring buffer of classification events.
type Sniffer struct {
	objs    bpfObjects
	xdpLink link.Link
	reader  *ringbuf.Reader
	iface   string

	mu     sync.Mutex
	counts SnifferCounts
	done   chan struct{}
}

// Attach loads the XDP filter and attaches it to ifaceName, then starts a
// background goroutine draining classification events into the running
// counters returned by Counts.
func Attach(ifaceName string) (*Sniffer, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("netdiag: remove memlock rlimit: %w", err)
	}

	s := &Sniffer{iface: ifaceName, done: make(chan struct{})}

	if err := loadBpfObjects(&s.objs, nil); err != nil {
		return nil, fmt.Errorf("netdiag: load xdp objects: %w", err)
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("netdiag: interface %s: %w", ifaceName, err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   s.objs.XdpFilterGVCP,
		Interface: iface.Index,
	})
	if err != nil {
		return nil, fmt.Errorf("netdiag: attach xdp to %s: %w", ifaceName, err)
	}
	s.xdpLink = l

	reader, err := ringbuf.NewReader(s.objs.PacketEvents)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("netdiag: open ring buffer: %w", err)
	}
	s.reader = reader

	go s.drain()

	log.Printf("netdiag: sniffer attached to %s", ifaceName)
	return s, nil
}

func (s *Sniffer) drain() {
	defer close(s.done)
	for {
		record, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			log.Printf("netdiag: ring buffer read: %v", err)
			return
		}
		var ev packetEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			log.Printf("netdiag: decode packet event: %v", err)
			continue
		}
		s.record(ev.Kind)
	}
}

func (s *Sniffer) record(kind uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case kindCommand:
		s.counts.Commands++
	case kindAck:
		s.counts.Acks++
	default:
		s.counts.Malformed++
	}
}

// Counts returns a snapshot of the running totals.
func (s *Sniffer) Counts() SnifferCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// Close detaches the XDP program and stops the drain goroutine.
func (s *Sniffer) Close() error {
	if s.xdpLink != nil {
		if err := s.xdpLink.Close(); err != nil {
			log.Printf("netdiag: close xdp link: %v", err)
		}
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			log.Printf("netdiag: close ring buffer: %v", err)
		}
	}
	<-s.done
	return s.objs.Close()
}
