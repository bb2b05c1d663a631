// Package shmqueue implements the cross-process bounded queue that carries
// command text from clients to the launcher daemon.
//
// The queue lives in a memory-mapped file (normally under /dev/shm) so
// unrelated processes can share it. Its header holds the ring indices and three
// counting semaphores (a binary lock plus empty and full slot counts) built on
// Linux futexes. The daemon creates and destroys the segment; clients only
// open and unmap it.
//
// Enqueue and Dequeue block while the queue is full or empty respectively and
// honour context cancellation without disturbing the slot counters.
package shmqueue
