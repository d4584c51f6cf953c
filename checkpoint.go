// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"encoding/binary"
	"math/bits"
	"os"
	"time"
)

// checkpointMagic tags a checkpoint file as belonging to this format,
// distinct from the segment magic.
const checkpointMagic uint64 = 0x434B5054414244

// checkpointSize is the fixed on-disk record size: magic(8) +
// timestamp(8) + group_id(4) + padding(4) + tail(8) + checksum(8).
const checkpointSize = 40

// Checkpoint is a durable record of one consumer's progress, so it can
// resume at the same tail after a restart instead of replaying from
// scratch or skipping ahead blindly.
type Checkpoint struct {
	Magic     uint64
	Timestamp uint64
	GroupID   uint32
	Tail      uint64
	Checksum  uint64
}

func checkpointChecksum(c Checkpoint) uint64 {
	mixed := c.Magic ^ c.Timestamp ^ uint64(c.GroupID) ^ c.Tail
	return bits.RotateLeft64(mixed, 13)
}

// Save writes a checkpoint of the default consumer's current tail to
// path, overwriting any existing file.
func Save(q *Queue, path string) error {
	return saveCheckpoint(path, 0, loadRelaxed(q.base, offTail))
}

// SaveGroup writes a checkpoint of one consumer group's current tail.
func SaveGroup(c *Consumer) error {
	tail := loadRelaxed(c.queue.base, c.descOffset+groupOffTail)
	return saveCheckpoint("", c.groupID, tail)
}

// SaveGroupTo writes a checkpoint of one consumer group's current tail
// to path.
func SaveGroupTo(c *Consumer, path string) error {
	tail := loadRelaxed(c.queue.base, c.descOffset+groupOffTail)
	return saveCheckpoint(path, c.groupID, tail)
}

func saveCheckpoint(path string, groupID uint32, tail uint64) error {
	const op = "Save"
	ckpt := Checkpoint{
		Magic:     checkpointMagic,
		Timestamp: uint64(time.Now().Unix()),
		GroupID:   groupID,
		Tail:      tail,
	}
	ckpt.Checksum = checkpointChecksum(ckpt)

	buf := make([]byte, checkpointSize)
	binary.LittleEndian.PutUint64(buf[0:8], ckpt.Magic)
	binary.LittleEndian.PutUint64(buf[8:16], ckpt.Timestamp)
	binary.LittleEndian.PutUint32(buf[16:20], ckpt.GroupID)
	binary.LittleEndian.PutUint64(buf[24:32], ckpt.Tail)
	binary.LittleEndian.PutUint64(buf[32:40], ckpt.Checksum)

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return newErr(op, KindSysErr, err)
	}
	return nil
}

// Load reads and validates a checkpoint from path. A checksum mismatch
// or wrong magic is reported as ErrCorrupted.
func Load(path string) (Checkpoint, error) {
	const op = "Load"
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, newErr(op, KindNotFound, err)
		}
		return Checkpoint{}, newErr(op, KindSysErr, err)
	}
	if len(buf) != checkpointSize {
		return Checkpoint{}, newErr(op, KindCorrupted, nil)
	}

	c := Checkpoint{
		Magic:     binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
		GroupID:   binary.LittleEndian.Uint32(buf[16:20]),
		Tail:      binary.LittleEndian.Uint64(buf[24:32]),
		Checksum:  binary.LittleEndian.Uint64(buf[32:40]),
	}

	if c.Magic != checkpointMagic {
		return Checkpoint{}, newErr(op, KindCorrupted, nil)
	}
	if checkpointChecksum(c) != c.Checksum {
		return Checkpoint{}, newErr(op, KindCorrupted, nil)
	}
	return c, nil
}

// Resume rewinds the default consumer's tail to a previously saved
// checkpoint. A tail ahead of the current head is clamped to head, and a
// tail more than capacity behind head is raised to head-capacity, so a
// stale checkpoint can never rewind past messages the producer has
// already overwritten.
func Resume(q *Queue, ckpt Checkpoint) error {
	head := loadAcquire(q.base, offHead)
	tail := ckpt.Tail
	if tail > head {
		tail = head
	}
	var floor uint64
	if head > q.capacity {
		floor = head - q.capacity
	}
	if tail < floor {
		tail = floor
	}
	storeRelease(q.base, offTail, tail)
	return nil
}

// ResumeGroup binds a Consumer to groupID (creating it if absent) and
// rewinds its tail to the checkpoint, with the same clamping as Resume.
func ResumeGroup(q *Queue, ckpt Checkpoint) (*Consumer, error) {
	c, err := q.JoinGroup(ckpt.GroupID)
	if err != nil {
		c, err = q.CreateGroup(ckpt.GroupID)
		if err != nil {
			return nil, err
		}
	}

	head := loadAcquire(q.base, offHead)
	tail := ckpt.Tail
	if tail > head {
		tail = head
	}
	var floor uint64
	if head > q.capacity {
		floor = head - q.capacity
	}
	if tail < floor {
		tail = floor
	}
	storeRelease(q.base, c.descOffset+groupOffTail, tail)
	return c, nil
}
