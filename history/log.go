package history

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mars-sim/mars-sim-sub082/clock"
)

// Log is the bounded history. Index 0 is always the most recent retained
// record. Record may be called from any goroutine.
type Log struct {
	teller clock.TimeTeller
	logger *slog.Logger

	lock      sync.Mutex
	records   []Record // oldest first
	capacity  int
	transient map[Category]bool
	nextSeq   uint64

	// pending holds notifications in log order, guarded by lock. One caller
	// at a time delivers them, so observers see changes in the order they
	// were applied.
	pending    []notification
	delivering bool

	observersLock sync.Mutex
	observers     []Observer

	dropped atomic.Uint64
}

// NewLog creates a log stamped by the given time teller. A nil logger means
// slog.Default().
func NewLog(
	teller clock.TimeTeller,
	cfg Config,
	logger *slog.Logger,
) (*Log, error) {
	if teller == nil {
		panic("time teller is not set")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	l := &Log{
		teller:    teller,
		logger:    logger,
		capacity:  cfg.Capacity,
		transient: make(map[Category]bool),
		records:   make([]Record, 0, cfg.Capacity+1),
	}

	for _, c := range cfg.Transient {
		l.transient[c] = true
	}

	return l, nil
}

// Record stamps an entry with the current simulated time and, unless its
// category is transient, inserts it at the head of the log. It returns the
// stamped record and whether it was retained.
func (l *Log) Record(category Category, payload any) (Record, bool) {
	now := l.teller.CurrentTime()

	l.lock.Lock()

	rec := Record{
		Seq:       l.nextSeq,
		Timestamp: now,
		Category:  category,
		Payload:   payload,
	}
	l.nextSeq++

	if l.transient[category] {
		l.lock.Unlock()
		l.dropped.Add(1)

		return rec, false
	}

	l.records = append(l.records, rec)
	from, to, evicted := l.evictOverflow()
	l.pending = append(l.pending, notification{
		inserted: &rec,
		from:     from,
		to:       to,
		evicted:  evicted,
	})
	deliver := l.startDelivery()

	l.lock.Unlock()

	if deliver {
		l.deliverPending()
	}

	return rec, true
}

// A notification is one change to the log as observers are told about it.
type notification struct {
	inserted *Record
	from, to int
	evicted  []Record
}

// startDelivery must be called with lock held. It reports whether the
// caller has become the one delivering pending notifications.
func (l *Log) startDelivery() bool {
	if l.delivering {
		return false
	}

	l.delivering = true

	return true
}

// deliverPending notifies observers until no notification is left. Changes
// made by other goroutines, or by observers themselves, while it runs are
// delivered by it too, after the ones before them.
func (l *Log) deliverPending() {
	for {
		l.lock.Lock()
		batch := l.pending
		l.pending = nil
		if len(batch) == 0 {
			l.delivering = false
			l.lock.Unlock()

			return
		}
		l.lock.Unlock()

		for _, n := range batch {
			for _, o := range l.observerSnapshot() {
				if n.inserted != nil {
					l.notifyInserted(o, *n.inserted)
				}

				if len(n.evicted) > 0 {
					l.notifyEvicted(o, n.from, n.to, n.evicted)
				}
			}
		}
	}
}

// evictOverflow removes the oldest records above capacity in one block. The
// returned range is the inclusive index range they occupied, newest first.
func (l *Log) evictOverflow() (from, to int, evicted []Record) {
	excess := len(l.records) - l.capacity
	if excess <= 0 {
		return 0, 0, nil
	}

	size := len(l.records)
	evicted = make([]Record, excess)
	for i := range evicted {
		evicted[i] = l.records[excess-1-i]
	}

	l.records = slices.Delete(l.records, 0, excess)

	return size - excess, size - 1, evicted
}

// Get returns the record at index, where 0 is the most recent.
func (l *Log) Get(index int) (Record, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	size := len(l.records)
	if index < 0 || index >= size {
		return Record{}, &IndexError{Index: index, Size: size}
	}

	return l.records[size-1-index], nil
}

// Size returns the number of retained records.
func (l *Log) Size() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.records)
}

// Capacity returns the maximum number of retained records.
func (l *Log) Capacity() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.capacity
}

// SetCapacity changes the capacity. Shrinking below the current size evicts
// the oldest records in one notification.
func (l *Log) SetCapacity(n int) error {
	if err := validateCapacity(n); err != nil {
		return err
	}

	l.lock.Lock()
	l.capacity = n
	from, to, evicted := l.evictOverflow()

	deliver := false
	if len(evicted) > 0 {
		l.pending = append(l.pending, notification{
			from:    from,
			to:      to,
			evicted: evicted,
		})
		deliver = l.startDelivery()
	}
	l.lock.Unlock()

	l.logger.Info("history capacity changed", slog.Int("capacity", n))

	if deliver {
		l.deliverPending()
	}

	return nil
}

// IsTransient reports whether records of the category are dropped.
func (l *Log) IsTransient(c Category) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.transient[c]
}

// DroppedCount returns how many transient records have been dropped.
func (l *Log) DroppedCount() uint64 {
	return l.dropped.Load()
}

// Records returns a snapshot of the log, most recent first.
func (l *Log) Records() []Record {
	l.lock.Lock()
	defer l.lock.Unlock()

	list := slices.Clone(l.records)
	slices.Reverse(list)

	return list
}

// Filter returns the retained records of one category, most recent first.
func (l *Log) Filter(c Category) []Record {
	l.lock.Lock()
	defer l.lock.Unlock()

	var list []Record
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Category == c {
			list = append(list, l.records[i])
		}
	}

	return list
}

// AddObserver registers an observer. Adding an observer twice has no effect.
func (l *Log) AddObserver(o Observer) {
	l.observersLock.Lock()
	defer l.observersLock.Unlock()

	if slices.Contains(l.observers, o) {
		return
	}

	l.observers = append(slices.Clip(l.observers), o)
}

// RemoveObserver unregisters an observer.
func (l *Log) RemoveObserver(o Observer) {
	l.observersLock.Lock()
	defer l.observersLock.Unlock()

	l.observers = slices.DeleteFunc(slices.Clone(l.observers),
		func(registered Observer) bool { return registered == o })
}

func (l *Log) observerSnapshot() []Observer {
	l.observersLock.Lock()
	defer l.observersLock.Unlock()

	return l.observers
}

func (l *Log) notifyInserted(o Observer, rec Record) {
	defer l.recoverObserver(o)

	o.OnRecordInserted(0, rec)
}

func (l *Log) notifyEvicted(o Observer, from, to int, recs []Record) {
	defer l.recoverObserver(o)

	o.OnRecordsEvicted(from, to, recs)
}

func (l *Log) recoverObserver(o Observer) {
	if r := recover(); r != nil {
		l.logger.Error("history observer failed",
			slog.String("observer", fmt.Sprintf("%T", o)),
			slog.Any("error", r),
		)
	}
}
