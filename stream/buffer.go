// Package stream implements the per-frame animation event bus: a single
// growable byte buffer that parallel producers append variable-length
// records to, and that one thread drains sequentially after the frame's
// workers have joined. Records are framed as a 32-bit type tag, a 32-bit
// target entity, an 8-bit payload size and the payload bytes, so readers
// can skip record types they do not recognize.
package stream

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/atrika/animrt/ecs"
)

const headerSize = 4 + 4 + 1

// MaxPayloadSize is the largest payload one record can carry.
const MaxPayloadSize = 255

// Buffer is the shared event stream. Append may be called concurrently
// during the parallel update phase; Drain and Reset must only run on a
// single thread after all producers have joined.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// Reset clears the buffer. Called at the start of every frame.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Append writes one record. Safe for concurrent use by frame workers.
func (b *Buffer) Append(eventType uint32, entity ecs.Entity, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("stream: payload of %d bytes exceeds record limit", len(payload))
	}
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:], eventType)
	binary.LittleEndian.PutUint32(header[4:], uint32(entity))
	header[8] = byte(len(payload))

	b.mu.Lock()
	b.data = append(b.data, header[:]...)
	b.data = append(b.data, payload...)
	b.mu.Unlock()
	return nil
}

// Record is one decoded event. Payload aliases the buffer and is only
// valid until the next Reset.
type Record struct {
	Type    uint32
	Entity  ecs.Entity
	Payload []byte
}

// Drain reads records sequentially from offset 0 and hands each to fn in
// append order. Unknown types are the callback's business; the framing
// always advances by the declared payload size, so unrecognized records
// never desynchronize the stream.
func (b *Buffer) Drain(fn func(Record)) error {
	pos := 0
	for pos < len(b.data) {
		if len(b.data)-pos < headerSize {
			return fmt.Errorf("stream: truncated record header at offset %d", pos)
		}
		rec := Record{
			Type:   binary.LittleEndian.Uint32(b.data[pos:]),
			Entity: ecs.Entity(binary.LittleEndian.Uint32(b.data[pos+4:])),
		}
		size := int(b.data[pos+8])
		pos += headerSize
		if len(b.data)-pos < size {
			return fmt.Errorf("stream: truncated payload at offset %d", pos)
		}
		rec.Payload = b.data[pos : pos+size]
		pos += size
		fn(rec)
	}
	return nil
}
