package clock

import (
	"container/heap"
	"sync"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

// VirtualScheduler is a Scheduler whose time only moves when AdvanceTo or AdvanceBy is called.
// Due tasks run synchronously on the goroutine that advances time, in due-time order with
// ties broken by scheduling order. Tasks scheduled by a running task also run in the same
// call when they fall due inside the advanced window.
type VirtualScheduler struct {
	mu    sync.Mutex
	clock *testingclock.FakePassiveClock
	tasks taskQueue
	seq   uint64
}

// NewVirtualScheduler creates a VirtualScheduler starting at start
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{clock: testingclock.NewFakePassiveClock(start)}
}

// Now returns the current virtual time
func (v *VirtualScheduler) Now() time.Time {
	return v.clock.Now()
}

// Schedule registers task to run once virtual time reaches Now()+delay
func (v *VirtualScheduler) Schedule(delay time.Duration, task func()) Cancel {
	if delay < 0 {
		delay = 0
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTask{due: v.clock.Now().Add(delay), seq: v.seq, run: task}
	heap.Push(&v.tasks, t)

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if t.index >= 0 {
			heap.Remove(&v.tasks, t.index)
		}
	}
}

// AdvanceBy moves virtual time forward by d, running every task that falls due
func (v *VirtualScheduler) AdvanceBy(d time.Duration) {
	v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves virtual time forward to t, running every task due at or before t.
// Moving backwards is ignored.
func (v *VirtualScheduler) AdvanceTo(t time.Time) {
	for {
		v.mu.Lock()
		if len(v.tasks) == 0 || v.tasks[0].due.After(t) {
			if t.After(v.clock.Now()) {
				v.clock.SetTime(t)
			}
			v.mu.Unlock()
			return
		}
		next := heap.Pop(&v.tasks).(*virtualTask)
		if next.due.After(v.clock.Now()) {
			v.clock.SetTime(next.due)
		}
		v.mu.Unlock()

		next.run()
	}
}

// Pending returns the number of tasks waiting to run
func (v *VirtualScheduler) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tasks)
}

type virtualTask struct {
	due   time.Time
	seq   uint64
	run   func()
	index int
}

// taskQueue is a min-heap on (due, seq)
type taskQueue []*virtualTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*virtualTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
