// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

// Metrics is a point-in-time snapshot of a queue's occupancy, suitable
// for polling into an external metrics system. It carries no
// throughput or latency figures — those require activity tracking this
// package deliberately does not implement (see DESIGN.md).
type Metrics struct {
	Head     uint64
	Tail     uint64
	Pending  uint64
	Capacity uint64
	SlotSize uint64
	UsedBytes uint64
	FillPct  float64
}

// Metrics returns an advisory snapshot of the queue's occupancy. Tail is
// the minimum tail across active consumer groups when the queue has any
// (so Pending reflects the slowest group), falling back to the default
// consumer's tail otherwise.
func (q *Queue) Metrics() Metrics {
	head := loadRelaxed(q.base, offHead)
	tail := q.MinTail()
	pending := head - tail
	return Metrics{
		Head:      head,
		Tail:      tail,
		Pending:   pending,
		Capacity:  q.capacity,
		SlotSize:  q.slotSize,
		UsedBytes: pending * q.slotSize,
		FillPct:   100 * float64(pending) / float64(q.capacity),
	}
}

// Metrics returns an advisory snapshot of this consumer group's view.
func (c *Consumer) Metrics() Metrics {
	q := c.queue
	head := loadRelaxed(q.base, offHead)
	tail := loadRelaxed(q.base, c.descOffset+groupOffTail)
	pending := head - tail
	return Metrics{
		Head:      head,
		Tail:      tail,
		Pending:   pending,
		Capacity:  q.capacity,
		SlotSize:  q.slotSize,
		UsedBytes: pending * q.slotSize,
		FillPct:   100 * float64(pending) / float64(q.capacity),
	}
}
