// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"github.com/rs/zerolog"
)

// OpenFlag selects the role(s) a handle opens a segment under. Flags are
// bitwise-combinable; Producer or Consumer must be set.
type OpenFlag int

const (
	// FlagCreate requests exclusive creation, falling back to attach if
	// the segment already exists.
	FlagCreate OpenFlag = 1 << iota
	// FlagProducer opens the segment as the (sole) producer.
	FlagProducer
	// FlagConsumer opens the segment as a default consumer.
	FlagConsumer
)

// OpenOptions configures Open.
type OpenOptions struct {
	// Name is the shared-memory name, conventionally leading with '/'.
	Name string

	// Capacity is the number of ring slots. Only consulted when Flags
	// includes FlagCreate; rounded up to the next power of two if it
	// isn't one already. Zero defaults to 1024.
	Capacity uint64

	// SlotSize is the maximum bytes per slot, including the 8-byte slot
	// header. Only consulted under FlagCreate. Zero defaults to 4096;
	// values below the 8-byte slot header plus 8 are raised to that
	// floor.
	SlotSize uint64

	// Flags selects create/producer/consumer behavior.
	Flags OpenFlag

	// WithGroups requests the multi-consumer extension at creation time.
	// Ignored when attaching to an existing segment (group support is
	// then whatever the creator chose).
	WithGroups bool

	// Logger receives structured diagnostic events (see log.go). The
	// zero value disables logging entirely; this never affects the
	// push/pop/reserve/commit/peek/release hot path, which never logs.
	Logger zerolog.Logger
}

// Queue is a process-local handle onto an attached queue segment. It
// memoizes the mapped base pointer and cached layout values, plus
// transient producer-side reservation state. The zero value is not
// usable; construct with Open.
type Queue struct {
	name string
	fd   int
	base []byte
	size uint64

	capacity     uint64
	slotSize     uint64
	mask         uint64
	bufferOffset uint64
	withGroups   bool

	isProducer   bool // this handle holds the producer-claim CAS
	reserved     bool
	reservePos   uint64
	reserveLen   int

	logger zerolog.Logger
}

// Open creates or attaches to a queue segment per opts.
func Open(opts OpenOptions) (*Queue, error) {
	const op = "Open"

	if opts.Name == "" {
		return nil, newErr(op, KindInvalid, nil)
	}
	isCreate := opts.Flags&FlagCreate != 0
	isProducer := opts.Flags&FlagProducer != 0
	isConsumer := opts.Flags&FlagConsumer != 0
	if !isProducer && !isConsumer {
		return nil, newErr(op, KindInvalid, nil)
	}

	capacity := opts.Capacity
	slotSize := opts.SlotSize
	if isCreate {
		if capacity == 0 {
			capacity = defaultCapacity
		}
		if slotSize == 0 {
			slotSize = defaultSlotSize
		}
		if !isPowerOfTwo(capacity) {
			capacity = nextPowerOfTwo(capacity)
		}
		if slotSize < minSlotSize {
			slotSize = minSlotSize
		}
	}

	fd, created, err := openOrAttach(opts.Name, isCreate)
	if err != nil {
		return nil, newErr(op, KindSysErr, err)
	}

	q := &Queue{name: opts.Name, fd: fd, logger: opts.Logger}

	if created {
		if err := q.initNew(capacity, slotSize, opts.WithGroups); err != nil {
			closeFD(fd)
			_ = unlinkSegment(opts.Name)
			return nil, newErr(op, KindSysErr, err)
		}
	} else {
		if err := q.attachExisting(); err != nil {
			closeFD(fd)
			return nil, err
		}
	}

	if isProducer {
		if !casU32(q.base, offReserved0, 0, 1) {
			q.unmapAndClose()
			return nil, newErr(op, KindInvalid, nil)
		}
		q.isProducer = true
	}

	q.logger.Debug().Str("name", q.name).Bool("created", created).
		Uint64("capacity", q.capacity).Uint64("slot_size", q.slotSize).
		Msg("nabd: queue opened")

	return q, nil
}

// openOrAttach implements spec §6's Create-falls-back-to-attach rule.
func openOrAttach(name string, isCreate bool) (fd int, created bool, err error) {
	if isCreate {
		return openCreate(name)
	}
	fd, err = openAttach(name)
	return fd, false, err
}

func (q *Queue) initNew(capacity, slotSize uint64, withGroups bool) error {
	size := segmentSize(capacity, slotSize, withGroups)
	base, err := mapFull(q.fd, size)
	if err != nil {
		return err
	}
	q.base = base
	q.size = size
	q.capacity = capacity
	q.slotSize = slotSize
	q.mask = capacity - 1
	q.bufferOffset = controlHeaderSize
	q.withGroups = withGroups

	storeRelaxed(q.base, offMagic, magic)
	storeRelaxed(q.base, offVersion, version)
	storeRelaxed(q.base, offCapacity, capacity)
	storeRelaxed(q.base, offSlotSize, slotSize)
	storeRelaxed(q.base, offBufferOffset, controlHeaderSize)
	storeRelaxed(q.base, offHead, 0)
	storeRelaxed(q.base, offTail, 0)

	if withGroups {
		*u64At(q.base, q.bufferOffset+capacity*slotSize+extOffMagic) = extMagic
	}
	return nil
}

func (q *Queue) attachExisting() error {
	const op = "Open"
	head, err := mapExisting(q.fd, controlHeaderSize, true)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}

	gotMagic := loadRelaxed(head, offMagic)
	if gotMagic != magic {
		_ = unmap(head)
		return newErr(op, KindInvalid, nil)
	}
	gotVersion := loadRelaxed(head, offVersion)
	if gotVersion != version {
		_ = unmap(head)
		return newErr(op, KindVersion, nil)
	}

	capacity := loadRelaxed(head, offCapacity)
	slotSize := loadRelaxed(head, offSlotSize)
	bufferOffset := loadRelaxed(head, offBufferOffset)
	_ = unmap(head)

	fileSize, err := statSize(q.fd)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}
	withGroups := fileSize >= segmentSize(capacity, slotSize, true)

	full, err := mapExisting(q.fd, fileSize, true)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}

	q.base = full
	q.size = fileSize
	q.capacity = capacity
	q.slotSize = slotSize
	q.mask = capacity - 1
	q.bufferOffset = bufferOffset
	q.withGroups = withGroups
	return nil
}

// Close unmaps the segment and closes its descriptor. It does not remove
// the named segment from the filesystem — call Unlink for that.
func (q *Queue) Close() error {
	if q.isProducer {
		casU32(q.base, offReserved0, 1, 0)
	}
	q.logger.Debug().Str("name", q.name).Msg("nabd: queue closed")
	return q.unmapAndClose()
}

func (q *Queue) unmapAndClose() error {
	err := unmap(q.base)
	q.base = nil
	if cerr := closeFD(q.fd); err == nil {
		err = cerr
	}
	if err != nil {
		return newErr("Close", KindSysErr, err)
	}
	return nil
}

// Unlink removes a named segment. The segment is reclaimed once the last
// attacher detaches.
func Unlink(name string) error {
	if name == "" {
		return newErr("Unlink", KindInvalid, nil)
	}
	if err := unlinkSegment(name); err != nil {
		return newErr("Unlink", KindSysErr, err)
	}
	return nil
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return closeRaw(fd)
}
