// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import "golang.org/x/sys/unix"

// State classifies the health of a queue segment as found on disk,
// independent of any process currently attached to it.
type State int

const (
	// StateEmpty means no segment exists under that name.
	StateEmpty State = iota
	// StateOk means the segment is well-formed and its counters are
	// internally consistent.
	StateOk
	// StateCorrupted means the segment's magic does not match, its
	// declared capacity or slot size is invalid, or its head/tail
	// counters violate the ring invariant.
	StateCorrupted
	// StateVersionErr means the segment's magic matches but its version
	// does not, so its layout cannot be trusted.
	StateVersionErr
	// StateIncomplete means the segment is smaller than its own header
	// declares it should be — most likely caught mid-creation.
	StateIncomplete
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateOk:
		return "ok"
	case StateCorrupted:
		return "corrupted"
	case StateVersionErr:
		return "version_error"
	case StateIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Diagnostic is the result of inspecting a segment without attaching to
// it as a producer or consumer.
type Diagnostic struct {
	State    State
	Capacity uint64
	SlotSize uint64
	Head     uint64
	Tail     uint64
}

// Diagnose inspects the named segment and classifies its health. It never
// modifies the segment and never takes the producer claim.
func Diagnose(name string) (Diagnostic, error) {
	const op = "Diagnose"

	fd, err := openReadOnly(name)
	if err != nil {
		if err == unix.ENOENT {
			return Diagnostic{State: StateEmpty}, nil
		}
		return Diagnostic{}, newErr(op, KindSysErr, err)
	}
	defer closeFD(fd)

	fileSize, err := statSize(fd)
	if err != nil {
		return Diagnostic{}, newErr(op, KindSysErr, err)
	}
	if fileSize < controlHeaderSize {
		return Diagnostic{State: StateIncomplete}, nil
	}

	head, err := mapExisting(fd, controlHeaderSize, false)
	if err != nil {
		return Diagnostic{}, newErr(op, KindSysErr, err)
	}
	defer unmap(head)

	gotMagic := loadRelaxed(head, offMagic)
	if gotMagic != magic {
		return Diagnostic{State: StateCorrupted}, nil
	}

	gotVersion := loadRelaxed(head, offVersion)
	if gotVersion != version {
		return Diagnostic{State: StateVersionErr}, nil
	}

	capacity := loadRelaxed(head, offCapacity)
	slotSize := loadRelaxed(head, offSlotSize)
	if capacity == 0 || !isPowerOfTwo(capacity) || slotSize < minSlotSize {
		return Diagnostic{State: StateCorrupted}, nil
	}

	if fileSize < segmentSize(capacity, slotSize, false) {
		return Diagnostic{State: StateIncomplete, Capacity: capacity, SlotSize: slotSize}, nil
	}

	headCtr := loadRelaxed(head, offHead)
	tailCtr := loadRelaxed(head, offTail)

	d := Diagnostic{Capacity: capacity, SlotSize: slotSize, Head: headCtr, Tail: tailCtr}
	if tailCtr > headCtr || headCtr-tailCtr > capacity {
		d.State = StateCorrupted
		return d, nil
	}

	d.State = StateOk
	return d, nil
}

// Recover repairs a segment according to its diagnosed state:
//
//   - Empty/Ok: no-op, always succeeds — there is nothing to repair.
//   - Incomplete: the segment was caught mid-creation and can never become
//     usable; it is unlinked.
//   - Corrupted: its default tail is reset to its head, forcing the
//     consumer to skip whatever it had not yet read. Refuses unless force
//     is true, since this always discards unread messages. A segment whose
//     magic does not match is left untouched and ErrInvalid is returned.
//   - VersionErr: refused unconditionally — a layout this package doesn't
//     recognize is never auto-recoverable.
func Recover(name string, force bool) error {
	const op = "Recover"

	d, err := Diagnose(name)
	if err != nil {
		return err
	}

	switch d.State {
	case StateEmpty, StateOk:
		return nil
	case StateVersionErr:
		return newErr(op, KindVersion, nil)
	case StateIncomplete:
		return Unlink(name)
	case StateCorrupted:
		if !force {
			return newErr(op, KindInvalid, nil)
		}
		return resetTailToHead(name)
	default:
		return newErr(op, KindInvalid, nil)
	}
}

// resetTailToHead performs the actual forced-recovery repair for a
// StateCorrupted segment.
func resetTailToHead(name string) error {
	const op = "Recover"

	fd, err := openAttach(name)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}
	defer closeFD(fd)

	fileSize, err := statSize(fd)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}
	if fileSize < controlHeaderSize {
		return newErr(op, KindCorrupted, nil)
	}

	base, err := mapExisting(fd, fileSize, true)
	if err != nil {
		return newErr(op, KindSysErr, err)
	}
	defer unmap(base)

	if loadRelaxed(base, offMagic) != magic {
		return newErr(op, KindInvalid, nil)
	}

	head := loadRelaxed(base, offHead)
	storeRelease(base, offTail, head)
	return nil
}
