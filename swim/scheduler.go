package swim

import (
	"time"
)

type Timer interface {
	Cancel()
}

// Scheduler arms one-shot timers whose callbacks run on the dispatcher.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Timer
}

type dispatchScheduler struct {
	dispatcher Dispatcher
}

func NewDispatchScheduler(dispatcher Dispatcher) Scheduler {
	return &dispatchScheduler{
		dispatcher: dispatcher,
	}
}

func (self *dispatchScheduler) Schedule(delay time.Duration, fn func()) Timer {
	timer := &dispatchTimer{}
	timer.timer = time.AfterFunc(delay, func() {
		self.dispatcher.Dispatch(func() {
			// a cancel can race the dispatch, so check again on the dispatcher
			if !timer.canceled {
				fn()
			}
		})
	})
	return timer
}

// `canceled` is read and written only on the dispatcher
type dispatchTimer struct {
	timer    *time.Timer
	canceled bool
}

func (self *dispatchTimer) Cancel() {
	self.canceled = true
	self.timer.Stop()
}
