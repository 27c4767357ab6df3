package datarecording

import (
	"fmt"

	"github.com/mars-sim/mars-sim-sub082/history"
)

// HistoryRecorder keeps every retained history record, including the ones
// the bounded log later evicts.
type HistoryRecorder struct {
	recorder DataRecorder
}

var _ history.Observer = (*HistoryRecorder)(nil)

// NewHistoryRecorder creates the history table on the recorder.
func NewHistoryRecorder(recorder DataRecorder) *HistoryRecorder {
	recorder.CreateTable(HistoryTable, HistoryRow{})

	return &HistoryRecorder{recorder: recorder}
}

// OnRecordInserted stores the record.
func (h *HistoryRecorder) OnRecordInserted(_ int, rec history.Record) {
	h.recorder.InsertData(HistoryTable, HistoryRow{
		Seq:       rec.Seq,
		MarsTime:  rec.Timestamp.String(),
		Millisols: rec.Timestamp.TotalMillisols(),
		Category:  rec.Category.String(),
		Payload:   fmt.Sprint(rec.Payload),
	})
}

// OnRecordsEvicted does nothing; the recording outlives the log.
func (h *HistoryRecorder) OnRecordsEvicted(int, int, []history.Record) {}
