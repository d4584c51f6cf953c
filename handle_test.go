// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_CreateFallsBackToAttach(t *testing.T) {
	name := testName(t)
	defer Unlink(name)

	q1, err := Open(OpenOptions{Name: name, Capacity: 8, SlotSize: 64, Flags: FlagCreate | FlagConsumer})
	require.NoError(t, err)
	defer q1.Close()

	q2, err := Open(OpenOptions{Name: name, Flags: FlagCreate | FlagConsumer})
	require.NoError(t, err, "second Create should fall back to attach rather than fail")
	defer q2.Close()

	require.Equal(t, q1.capacity, q2.capacity)
	require.Equal(t, q1.slotSize, q2.slotSize)
}

func TestOpen_SecondProducerRejected(t *testing.T) {
	name := testName(t)
	defer Unlink(name)

	producer, err := Open(OpenOptions{Name: name, Capacity: 8, SlotSize: 64, Flags: FlagCreate | FlagProducer})
	require.NoError(t, err)
	defer producer.Close()

	_, err = Open(OpenOptions{Name: name, Flags: FlagProducer})
	require.Error(t, err, "a second producer claim must be rejected")
	require.True(t, isKind(err, KindInvalid))
}

func TestOpen_ProducerClaimReleasedOnClose(t *testing.T) {
	name := testName(t)
	defer Unlink(name)

	first, err := Open(OpenOptions{Name: name, Capacity: 8, SlotSize: 64, Flags: FlagCreate | FlagProducer})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(OpenOptions{Name: name, Flags: FlagProducer})
	require.NoError(t, err, "claim should be free again once the first producer closed")
	defer second.Close()
}

func TestOpen_RejectsMissingFlags(t *testing.T) {
	name := testName(t)
	_, err := Open(OpenOptions{Name: name, Flags: FlagCreate})
	require.Error(t, err)
	require.True(t, isKind(err, KindInvalid))
}

func TestOpen_RejectsEmptyName(t *testing.T) {
	_, err := Open(OpenOptions{Flags: FlagProducer})
	require.Error(t, err)
	require.True(t, isKind(err, KindInvalid))
}

func TestOpen_AttachSeesPublishedData(t *testing.T) {
	name := testName(t)
	defer Unlink(name)

	producer, err := Open(OpenOptions{Name: name, Capacity: 8, SlotSize: 64, Flags: FlagCreate | FlagProducer})
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.Push([]byte("ping")))

	consumer, err := Open(OpenOptions{Name: name, Flags: FlagConsumer})
	require.NoError(t, err)
	defer consumer.Close()

	buf := make([]byte, 64)
	n, err := consumer.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}
