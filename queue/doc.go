// Package queue provides a fixed-capacity multi-producer multi-consumer work
// queue, a worker pool that drains it, and the small synchronization helpers
// background jobs use to hand results back to the frame loop.
//
// # Queue
//
// Entries live in a ring of slots addressed by three monotonic cursors:
//
//	read      next entry a consumer may claim (CAS)
//	write     entries before this index are published
//	reserve   next slot a producer may claim (CAS)
//
// Producers reserve a slot, store the entry, then publish by advancing write
// in reservation order. Consumers claim an entry by advancing read with a CAS;
// losing the race means another consumer got it and the caller should sleep.
//
// The ring holds at most capacity-1 entries. Submit panics with a QueueOverflow
// error when it is full; TrySubmit returns the error instead.
//
// A completion goal counts submitted entries and a completion count counts
// finished ones. Drain helps until the two match and then resets both, which
// makes it a barrier for everything submitted before the call. Drain must not
// race with producers.
//
// Entries carry no ordering guarantee between each other.
//
// # Pool
//
//	pool := queue.NewPool(q, 2, queue.WithPoolLogger(logger))
//	defer pool.Close()
//
// Each worker loops "if TryTakeOne reports nothing to do, Wait for a signal".
// Submit signals once per entry.
//
// # Handle and Flag
//
// Handle[T] holds a value a worker replaces and the frame loop reads. Flag is
// a set-if-clear guard that keeps at most one job of a kind in flight.
package queue
