// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

package nabd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openGroupedQueue(t *testing.T) *Queue {
	t.Helper()
	name := testName(t)
	q, err := Open(OpenOptions{
		Name:       name,
		Capacity:   16,
		SlotSize:   64,
		Flags:      FlagCreate | FlagProducer,
		WithGroups: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		q.Close()
		Unlink(name)
	})
	return q
}

func TestGroups_IndependentConsumption(t *testing.T) {
	q := openGroupedQueue(t)

	a, err := q.CreateGroup(0)
	require.NoError(t, err)
	b, err := q.CreateGroup(0)
	require.NoError(t, err)
	require.NotEqual(t, a.GroupID(), b.GroupID())

	require.NoError(t, q.Push([]byte("one")))
	require.NoError(t, q.Push([]byte("two")))

	buf := make([]byte, 64)

	n, err := a.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "one", string(buf[:n]))

	// b has not consumed anything yet: both messages still pending for it.
	n, err = b.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "one", string(buf[:n]))
	n, err = b.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "two", string(buf[:n]))

	n, err = a.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "two", string(buf[:n]))

	_, err = a.Pop(buf)
	require.True(t, isKind(err, KindEmpty))
}

func TestGroups_JoinExisting(t *testing.T) {
	q := openGroupedQueue(t)

	created, err := q.CreateGroup(42)
	require.NoError(t, err)
	require.Equal(t, uint32(42), created.GroupID())

	joined, err := q.JoinGroup(42)
	require.NoError(t, err)
	require.Equal(t, uint32(42), joined.GroupID())

	require.NoError(t, q.Push([]byte("hi")))
	buf := make([]byte, 64)

	n, err := joined.Pop(buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))

	// Both handles bound to the same descriptor share the same tail.
	_, err = created.Pop(buf)
	require.True(t, isKind(err, KindEmpty))
}

func TestGroups_JoinUnknownFails(t *testing.T) {
	q := openGroupedQueue(t)
	_, err := q.JoinGroup(999)
	require.True(t, isKind(err, KindNotFound))
}

func TestGroups_NewGroupSkipsPastMessages(t *testing.T) {
	q := openGroupedQueue(t)
	require.NoError(t, q.Push([]byte("before")))

	late, err := q.CreateGroup(0)
	require.NoError(t, err)

	_, err = late.Pop(make([]byte, 64))
	require.True(t, isKind(err, KindEmpty), "a new group must not see messages published before it was created")
}

func TestGroups_MinTailTracksSlowestGroup(t *testing.T) {
	q := openGroupedQueue(t)

	a, err := q.CreateGroup(0)
	require.NoError(t, err)
	_, err = q.CreateGroup(0)
	require.NoError(t, err)

	require.NoError(t, q.Push([]byte("x")))
	require.NoError(t, q.Push([]byte("y")))

	buf := make([]byte, 64)
	_, err = a.Pop(buf)
	require.NoError(t, err)
	_, err = a.Pop(buf)
	require.NoError(t, err)

	require.Equal(t, uint64(0), q.MinTail(), "slowest group (b) has not consumed anything yet")
}

func TestGroups_ExhaustionReturnsNoMem(t *testing.T) {
	q := openGroupedQueue(t)
	for i := 0; i < maxConsumerGroups; i++ {
		_, err := q.CreateGroup(0)
		require.NoError(t, err)
	}
	_, err := q.CreateGroup(0)
	require.True(t, isKind(err, KindNoMem))
}

func TestGroups_WithoutSupportRejected(t *testing.T) {
	name := testName(t)
	defer Unlink(name)
	q, err := Open(OpenOptions{Name: name, Capacity: 8, SlotSize: 64, Flags: FlagCreate | FlagProducer})
	require.NoError(t, err)
	defer q.Close()

	_, err = q.CreateGroup(0)
	require.True(t, isKind(err, KindInvalid))
}
