// Package history keeps a bounded, most-recent-first trail of the things that
// happened in the simulation.
package history

import (
	"fmt"

	"github.com/mars-sim/mars-sim-sub082/timing"
)

// Record is one retained entry of the log.
type Record struct {
	// Seq increases by one for every record the log has accepted, retained
	// or not.
	Seq uint64

	// Timestamp is the simulated time at which the record was made.
	Timestamp timing.MarsTime

	Category Category
	Payload  any
}

// An Observer is told about every change to the log.
//
// Indices are positions in the log right after the change that caused the
// notification. Notifications arrive one at a time, in the order the changes
// were applied, even when records are added from several goroutines. Calls
// are made outside the log's lock, so an observer may read the log or add
// records; a record added from inside a notification is announced once the
// current one returns.
type Observer interface {
	// OnRecordInserted is called when rec is inserted, always at index 0.
	OnRecordInserted(index int, rec Record)

	// OnRecordsEvicted is called once per overflow with the inclusive index
	// range the evicted records occupied, oldest last.
	OnRecordsEvicted(from, to int, recs []Record)
}

// IndexError reports an access outside the log.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("history: index %d out of range [0, %d)", e.Index, e.Size)
}
