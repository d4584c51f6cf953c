// Copyright (c) 2025 Mohamed Yasser
//
// Licensed under the MIT License.

// Package nabd is a high-performance inter-process message queue built on a
// shared-memory ring buffer.
//
// A single producer publishes fixed-maximum-size messages into a segment
// backed by /dev/shm; one or more independent consumer groups observe the
// full message stream without coordinating with each other. The hot path —
// Push, Pop, Reserve, Commit, Peek, Release — is lock-free and wait-free:
// it never blocks and never takes a mutex.
//
// # Thread-Safety Guarantees
//
//   - At most one process/goroutine may act as producer for a given queue.
//   - The default consumer (Queue.Pop/Peek) is single-consumer: only one
//     goroutine should drain it.
//   - Each consumer group's tail is single-consumer within that group; if
//     multiple joiners share a group, the caller must serialize them.
//
// Violating these constraints causes data races, not panics: this package
// trusts its concurrency contract the way the C library it was ported from
// does.
//
// # Basic Usage
//
//	q, err := nabd.Open(nabd.OpenOptions{
//		Name:     "/orders",
//		Capacity: 1024,
//		SlotSize: 256,
//		Flags:    nabd.FlagCreate | nabd.FlagProducer,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer q.Close()
//
//	if err := q.Push([]byte("hello")); err != nil {
//		log.Fatal(err)
//	}
package nabd
