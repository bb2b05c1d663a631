package shmqueue

import "unsafe"

const (
	// Capacity is the number of message slots in the ring.
	Capacity = 10
	// SlotSize is the byte size of a slot's data area, terminator included.
	SlotSize = 1024
	// MessageSize is the largest message a slot can carry.
	MessageSize = SlotSize - 1

	layoutMagic   uint32 = 0x434d4451 // "CMDQ"
	layoutVersion uint32 = 2
)

// semaphore is a counting semaphore whose value doubles as the futex word.
type semaphore struct {
	value   int32
	waiters int32
}

type slot struct {
	length uint32
	data   [SlotSize]byte
}

// layout is overlaid on the mapped segment. Field order is part of the
// on-disk format; bump layoutVersion when it changes.
type layout struct {
	magic    uint32
	version  uint32
	capacity uint32
	slotSize uint32
	front    uint32
	rear     uint32
	// enqueued numbers messages in queue order; finished counts those the
	// consumer has acknowledged.
	enqueued uint64
	finished uint64
	mutex    semaphore
	empty    semaphore
	full     semaphore
	slots    [Capacity]slot
}

// SegmentSize is the exact size of a queue segment in bytes.
const SegmentSize = int(unsafe.Sizeof(layout{}))
