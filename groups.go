// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import "sync/atomic"

// Consumer binds a process-local reference to one consumer-group
// descriptor in the multi-consumer extension, plus the group's assigned
// identifier. Its Pop/Peek/Release read and write only the group's own
// tail; they never touch the default tail.
type Consumer struct {
	queue      *Queue
	descOffset uint64
	groupID    uint32
}

func (q *Queue) extensionBase() uint64 {
	return q.bufferOffset + q.capacity*q.slotSize
}

func (q *Queue) groupDescOffset(i int) uint64 {
	return q.extensionBase() + extHeaderSize + uint64(i)*groupDescriptorSize
}

// CreateGroup claims an unused consumer-group descriptor via
// compare-and-swap and binds a Consumer to it. If groupID is nonzero it is
// used as the assigned identifier; otherwise the identifier is
// slot_index+1. The new group's tail is initialized to the current head —
// it never sees messages published before it was created.
func (q *Queue) CreateGroup(groupID uint32) (*Consumer, error) {
	const op = "CreateGroup"
	if !q.withGroups {
		return nil, newErr(op, KindInvalid, nil)
	}

	for i := 0; i < maxConsumerGroups; i++ {
		off := q.groupDescOffset(i)
		if !casU32(q.base, off+groupOffActive, 0, 1) {
			continue
		}

		assigned := groupID
		if assigned == 0 {
			assigned = uint32(i + 1)
		}
		atomic.StoreUint32(u32At(q.base, off+groupOffID), assigned)

		head := loadAcquire(q.base, offHead)
		storeRelease(q.base, off+groupOffTail, head)

		q.logger.Debug().Str("name", q.name).Uint32("group_id", assigned).
			Msg("nabd: consumer group created")

		return &Consumer{queue: q, descOffset: off, groupID: assigned}, nil
	}

	return nil, newErr(op, KindNoMem, nil) // OutOfGroups
}

// JoinGroup binds a Consumer to an existing, active group by identifier.
func (q *Queue) JoinGroup(groupID uint32) (*Consumer, error) {
	const op = "JoinGroup"
	if !q.withGroups || groupID == 0 {
		return nil, newErr(op, KindInvalid, nil)
	}

	for i := 0; i < maxConsumerGroups; i++ {
		off := q.groupDescOffset(i)
		if atomic.LoadUint32(u32At(q.base, off+groupOffActive)) == 1 &&
			atomic.LoadUint32(u32At(q.base, off+groupOffID)) == groupID {
			return &Consumer{queue: q, descOffset: off, groupID: groupID}, nil
		}
	}

	return nil, newErr(op, KindNotFound, nil)
}

// Close releases this process-local Consumer handle. It does not clear
// the group's active flag: other joiners may still be consuming from it.
// The descriptor itself is only released when the segment is destroyed.
func (c *Consumer) Close() error {
	return nil
}

// GroupID returns the identifier this consumer is bound to.
func (c *Consumer) GroupID() uint32 { return c.groupID }

// Pop behaves like Queue.Pop but reads and advances this group's own
// tail, leaving the default tail and every other group untouched.
func (c *Consumer) Pop(buf []byte) (n int, err error) {
	const op = "Pop"
	q := c.queue
	tail := loadRelaxed(q.base, c.descOffset+groupOffTail)
	head := loadAcquire(q.base, offHead)

	if tail >= head {
		return 0, newErr(op, KindEmpty, nil)
	}

	length := int(q.readSlotHeader(tail))
	if length > len(buf) {
		return length, newErr(op, KindTooBig, nil)
	}

	copy(buf, q.slotPayload(tail)[:length])
	storeRelease(q.base, c.descOffset+groupOffTail, tail+1)
	return length, nil
}

// Peek behaves like Queue.Peek but against this group's own tail.
func (c *Consumer) Peek() ([]byte, error) {
	const op = "Peek"
	q := c.queue
	tail := loadRelaxed(q.base, c.descOffset+groupOffTail)
	head := loadAcquire(q.base, offHead)
	if tail >= head {
		return nil, newErr(op, KindEmpty, nil)
	}
	length := int(q.readSlotHeader(tail))
	return q.slotPayload(tail)[:length], nil
}

// Release advances this group's tail past the message last returned by
// Peek.
func (c *Consumer) Release() error {
	q := c.queue
	tail := loadRelaxed(q.base, c.descOffset+groupOffTail)
	storeRelease(q.base, c.descOffset+groupOffTail, tail+1)
	return nil
}

// ConsumerStats is a snapshot of one consumer group's progress.
type ConsumerStats struct {
	GroupID uint32
	Active  bool
	Tail    uint64
	Lag     uint64 // head - tail
}

// Stats returns an advisory snapshot of this consumer group.
func (c *Consumer) Stats() ConsumerStats {
	q := c.queue
	head := loadRelaxed(q.base, offHead)
	tail := loadRelaxed(q.base, c.descOffset+groupOffTail)
	active := atomic.LoadUint32(u32At(q.base, c.descOffset+groupOffActive)) == 1
	lag := uint64(0)
	if head > tail {
		lag = head - tail
	}
	return ConsumerStats{GroupID: c.groupID, Active: active, Tail: tail, Lag: lag}
}

// MinTail returns the minimum tail across all active consumer groups, or
// the default consumer's tail if no groups are active (or the queue was
// opened without group support). This is the horizon below which no
// consumer can still be reading.
func (q *Queue) MinTail() uint64 {
	if !q.withGroups {
		return loadRelaxed(q.base, offTail)
	}

	min := ^uint64(0)
	any := false
	for i := 0; i < maxConsumerGroups; i++ {
		off := q.groupDescOffset(i)
		if atomic.LoadUint32(u32At(q.base, off+groupOffActive)) != 1 {
			continue
		}
		any = true
		tail := loadRelaxed(q.base, off+groupOffTail)
		if tail < min {
			min = tail
		}
	}
	if !any {
		return loadRelaxed(q.base, offTail)
	}
	return min
}
