package datarecording

// Table names used by the recorders in this package.
const (
	HistoryTable = "history"
	PulseTable   = "pulse"
	EventTable   = "deferred_event"
)

// HistoryRow is one retained history record.
type HistoryRow struct {
	Seq       uint64
	MarsTime  string
	Millisols float64
	Category  string
	Payload   string
}

// PulseRow is one clock pulse.
type PulseRow struct {
	ID        uint64
	MarsTime  string
	EarthTime string
	Elapsed   float64
	NewSol    bool
}

// EventRow is one execution of a deferred entry.
type EventRow struct {
	EntryID     uint64
	Description string
	Trigger     string
	ExecutedAt  string
	Repeat      float64
	Failed      bool
}
