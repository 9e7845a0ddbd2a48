// Package worker implements the background compaction worker: a loop that
// watches the shared-state buffer and triggers compaction either on
// explicit request or when the file-size-to-live-data ratio crosses a
// threshold (spec.md §4.8).
//
// Unlike the literal design in spec.md §4.8 — which has the worker open a
// fresh storage/index pair per collection while the foreground instance
// may still be mutating it — this worker never touches a data file
// itself. It only flips shared-state cells and asks a Requester (the
// database, which owns the live foreground instances and their write
// locks) to do the actual compaction. See spec.md §9 "Worker consistency",
// strategy (ii).
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/smoldb/smoldb/sharedstate"
)

// Requester is implemented by whatever owns the live collection instances
// (the database) and can compact one by name under its own write lock.
type Requester interface {
	CollectionNames() ([]string, error)
	CompactCollection(name string) (bytesFreed int64, err error)
}

// Event reports a background-worker failure out of band, per spec.md §7:
// "must not crash the process." Uuid tags the event the same way the
// teacher's Command.Uuid tags every persisted command, since nothing else
// here identifies one worker pass's failures from another's.
type Event struct {
	Uuid       string
	Collection string
	Err        error
}

// Worker runs the state machine of spec.md §4.8 against one database's
// shared-state buffer.
type Worker struct {
	state        *sharedstate.State
	requester    Requester
	triggerRatio float64
	events       chan Event
	logger       *log.Logger
}

// Options configures a Worker.
type Options struct {
	State        *sharedstate.State
	Requester    Requester
	TriggerRatio float64 // default 2.0, applied by caller
	Logger       *log.Logger
}

// New returns a Worker ready to Run.
func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		state:        opts.State,
		requester:    opts.Requester,
		triggerRatio: opts.TriggerRatio,
		events:       make(chan Event, 16),
		logger:       logger,
	}
}

// Events exposes the out-of-band failure channel.
func (w *Worker) Events() <-chan Event { return w.events }

// Run executes the state machine until ctx is cancelled or a SHUTDOWN
// command is observed.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// A command stored before this point is handled without waiting,
		// so a Trigger or Shutdown issued before Run starts is not lost.
		if w.state.Get(sharedstate.Command) == sharedstate.CommandNone {
			w.state.Wait(5 * time.Second)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		switch w.state.Get(sharedstate.Command) {
		case sharedstate.CommandTriggerGC:
			w.runCompaction()
			w.state.Set(sharedstate.Command, sharedstate.CommandNone)
		case sharedstate.CommandShutdown:
			return
		default:
			w.maybeTrigger()
		}
	}
}

// maybeTrigger implements the "timeout / NONE" branch: compact when the
// file has grown past triggerRatio times its live data.
func (w *Worker) maybeTrigger() {
	if w.state.Get(sharedstate.GCStatus) != sharedstate.GCStatusIdle {
		return
	}
	fileSize := w.state.Get(sharedstate.FileSize)
	liveDataSize := w.state.Get(sharedstate.LiveDataSize)
	if liveDataSize == 0 {
		return
	}
	if float64(fileSize)/float64(liveDataSize) > w.triggerRatio {
		w.runCompaction()
	}
}

func (w *Worker) runCompaction() {
	w.state.Set(sharedstate.GCStatus, sharedstate.GCStatusRunning)
	w.state.Set(sharedstate.GCProgress, 0)

	names, err := w.requester.CollectionNames()
	if err != nil {
		w.emit(Event{Err: fmt.Errorf("smoldb: list collections: %w", err)})
		w.state.Set(sharedstate.GCStatus, sharedstate.GCStatusIdle)
		return
	}

	var totalFreed int64
	total := len(names)
	for i, name := range names {
		freed, err := w.requester.CompactCollection(name)
		if err != nil {
			w.emit(Event{Collection: name, Err: err})
		} else {
			totalFreed += freed
		}
		if total > 0 {
			w.state.Set(sharedstate.GCProgress, uint32((i+1)*100/total))
		}
	}

	w.state.Set(sharedstate.GCBytesFreed, uint32(totalFreed))
	w.state.Set(sharedstate.GCStatus, sharedstate.GCStatusIdle)
	w.state.Set(sharedstate.GCProgress, 100)
}

func (w *Worker) emit(e Event) {
	e.Uuid = uuid.New().String()
	select {
	case w.events <- e:
	default:
		w.logger.Printf("smoldb: worker event dropped (channel full): %v", e.Err)
	}
}

// Trigger stores COMMAND = TRIGGER_GC and wakes the worker, the foreground
// side of spec.md §4.8's "Foreground counterpart".
func Trigger(state *sharedstate.State) {
	state.Set(sharedstate.Command, sharedstate.CommandTriggerGC)
	state.Notify()
}

// Shutdown stores COMMAND = SHUTDOWN and wakes the worker.
func Shutdown(state *sharedstate.State) {
	state.Set(sharedstate.Command, sharedstate.CommandShutdown)
	state.Notify()
}
