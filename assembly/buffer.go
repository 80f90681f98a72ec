// Package assembly implements fragmentation and reassembly of datagram
// messages that exceed a single packet's payload budget.
package assembly

import (
	"container/list"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// FragmentLen is the maximum payload carried by a single fragment.
	FragmentLen = 1272
	// HeaderLen is the size of the wire framing header.
	HeaderLen = 8
	// MaxLen is the largest total message length a fragment may declare.
	MaxLen = 65535
	// MaxConcurrentHosts bounds the number of remotes tracked at once.
	MaxConcurrentHosts = 256
	// MaxAssembliesPerHost bounds in-flight assemblies for a single remote.
	MaxAssembliesPerHost = 256
	// MaxBufferPerHost bounds the bytes buffered for a single remote.
	MaxBufferPerHost = 256 * 1024
	// MaxAssemblyAge is how long an incomplete assembly is kept.
	MaxAssemblyAge = 10 * time.Second

	wireVersion = 1
)

var (
	errInvalidFrame  = errors.New("assembly: invalid frame")
	errHostCapacity  = errors.New("assembly: host capacity exceeded")
	errMessageTooBig = errors.New("assembly: message exceeds MaxLen")
)

// header is the 8-byte fragment framing header.
type header struct {
	version uint8
	seq     uint16
	offset  uint16
	length  uint16
}

func encodeHeader(h header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.version
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], h.seq)
	binary.BigEndian.PutUint16(buf[4:6], h.offset)
	binary.BigEndian.PutUint16(buf[6:8], h.length)
	return buf
}

func decodeHeader(frame []byte) (header, error) {
	if len(frame) < HeaderLen {
		return header{}, errInvalidFrame
	}
	h := header{
		version: frame[0],
		seq:     binary.BigEndian.Uint16(frame[2:4]),
		offset:  binary.BigEndian.Uint16(frame[4:6]),
		length:  binary.BigEndian.Uint16(frame[6:8]),
	}
	return h, nil
}

// messageAssembly is one in-progress reassembly for a given sequence number.
type messageAssembly struct {
	timestamp time.Time
	seq       uint16
	data      []byte
	parts     *rangeSet
}

func (m *messageAssembly) complete() bool {
	return m.parts.isFullRange(uint32(len(m.data)))
}

// hostState tracks all in-flight assemblies for one remote, oldest-last.
type hostState struct {
	assemblies *list.List // of *messageAssembly, front = newest
	bufBytes   int
}

// Buffer reassembles inbound fragments and splits outbound messages, keyed
// per remote address.
type Buffer struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	seq   uint16 // atomic outbound sequence counter
	log   *logrus.Entry

	sendLocks sync.Map // remote key -> *sync.Mutex, serializes outbound fragments per peer
}

// New constructs an empty assembly buffer.
func New() *Buffer {
	return &Buffer{
		hosts: make(map[string]*hostState),
		log:   logrus.WithField("component", "assembly"),
	}
}

// InsertFrame processes one inbound frame from remote. It returns the
// completed message and true when a message finishes reassembling; ok is
// false (with a nil error) when the frame was silently accepted as a partial
// fragment, and err is non-nil only for malformed input the caller should
// reject outright.
func (b *Buffer) InsertFrame(remote string, frame []byte) (message []byte, ok bool, err error) {
	if len(frame) == 0 {
		return nil, true, nil
	}

	h, err := decodeHeader(frame)
	if err != nil {
		return nil, false, errInvalidFrame
	}
	if h.version != wireVersion {
		return nil, false, nil
	}
	if len(frame) <= HeaderLen || len(frame) > MaxLen {
		return nil, false, nil
	}
	chunk := frame[HeaderLen:]
	if int(h.offset) >= int(h.length) {
		return nil, false, nil
	}
	if int(h.offset)+len(chunk) > int(h.length) {
		return nil, false, nil
	}

	if h.offset == 0 && len(chunk) == int(h.length) {
		out := make([]byte, len(chunk))
		copy(out, chunk)
		return out, true, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	host, ok := b.hosts[remote]
	if !ok {
		if len(b.hosts) >= MaxConcurrentHosts {
			return nil, false, nil
		}
		host = &hostState{assemblies: list.New()}
		b.hosts[remote] = host
	}

	b.ageOut(host)

	asm := b.findAssembly(host, h.seq)
	switch {
	case asm == nil:
		asm = b.allocateAssembly(host, h)
	case len(asm.data) != int(h.length) || asm.parts.overlaps(uint32(h.offset), uint32(len(chunk))):
		b.removeAssembly(host, asm)
		asm = b.allocateAssembly(host, h)
	}

	before := asm.parts.coveredBytes()
	copy(asm.data[h.offset:], chunk)
	asm.parts.insert(uint32(h.offset), uint32(len(chunk)))
	host.bufBytes += asm.parts.coveredBytes() - before

	if asm.complete() {
		out := asm.data
		b.removeAssembly(host, asm)
		return out, true, nil
	}
	return nil, false, nil
}

// ageOut truncates the deque from the first entry older than MaxAssemblyAge.
func (b *Buffer) ageOut(h *hostState) {
	cutoff := time.Now().Add(-MaxAssemblyAge)
	for e := h.assemblies.Back(); e != nil; {
		asm := e.Value.(*messageAssembly)
		if asm.timestamp.After(cutoff) {
			break
		}
		prev := e.Prev()
		h.assemblies.Remove(e)
		h.bufBytes -= asm.parts.coveredBytes()
		e = prev
	}
}

func (b *Buffer) findAssembly(h *hostState, seq uint16) *messageAssembly {
	for e := h.assemblies.Front(); e != nil; e = e.Next() {
		asm := e.Value.(*messageAssembly)
		if asm.seq == seq {
			return asm
		}
	}
	return nil
}

func (b *Buffer) allocateAssembly(h *hostState, hd header) *messageAssembly {
	for h.assemblies.Len() >= MaxAssembliesPerHost || h.bufBytes > MaxBufferPerHost {
		back := h.assemblies.Back()
		if back == nil {
			break
		}
		old := back.Value.(*messageAssembly)
		h.assemblies.Remove(back)
		h.bufBytes -= old.parts.coveredBytes()
	}

	asm := &messageAssembly{
		timestamp: time.Now(),
		seq:       hd.seq,
		data:      make([]byte, hd.length),
		parts:     newRangeSet(),
	}
	h.assemblies.PushFront(asm)
	return asm
}

func (b *Buffer) removeAssembly(h *hostState, target *messageAssembly) {
	for e := h.assemblies.Front(); e != nil; e = e.Next() {
		if e.Value.(*messageAssembly) == target {
			h.assemblies.Remove(e)
			h.bufBytes -= target.parts.coveredBytes()
			return
		}
	}
}

// SplitMessage fragments message into frames and hands each to send, in
// order, serially, short-circuiting on the first error. Fragments to a
// single remote are never interleaved with another in-flight message to the
// same remote.
func (b *Buffer) SplitMessage(remote string, message []byte, send func(frame []byte) error) error {
	if len(message) > MaxLen {
		return errMessageTooBig
	}

	lockIface, _ := b.sendLocks.LoadOrStore(remote, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if len(message) == 0 {
		return send(nil)
	}

	seq := b.nextSeq()
	total := uint16(len(message))

	for offset := 0; offset < len(message); offset += FragmentLen {
		end := offset + FragmentLen
		if end > len(message) {
			end = len(message)
		}
		h := header{version: wireVersion, seq: seq, offset: uint16(offset), length: total}
		frame := append(encodeHeader(h), message[offset:end]...)
		if err := send(frame); err != nil {
			return fmt.Errorf("assembly: send fragment at offset %d: %w", offset, err)
		}
	}
	return nil
}

func (b *Buffer) nextSeq() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.seq
	b.seq++
	return s
}
