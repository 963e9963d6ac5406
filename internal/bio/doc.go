// Package bio runs slow operations off the goroutine that owns the
// keyspace: closing files, committing them to stable storage and freeing
// large values.
//
// Each job kind has its own worker and FIFO queue, so jobs of one kind
// complete in the order they were submitted. Callers can observe the
// backlog with Pending and wait for progress with WaitStep.
package bio
