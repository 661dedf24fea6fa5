package swim

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/golang/glog"
)

// Dispatcher runs closures on the goroutine that owns client state.
type Dispatcher interface {
	// returns false if the dispatcher is closed and `fn` will never run
	Dispatch(fn func()) bool
}

// Loop is a single goroutine draining a queue of closures. All channel, downlink and scope
// state of a client is confined to its loop.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc

	events chan func()

	// the goroutine running the loop, 0 until it starts
	goroutineId atomic.Uint64
}

func NewLoop(ctx context.Context, queueSize int) *Loop {
	cancelCtx, cancel := context.WithCancel(ctx)
	loop := &Loop{
		ctx:    cancelCtx,
		cancel: cancel,
		events: make(chan func(), queueSize),
	}
	go loop.run()
	return loop
}

func (self *Loop) run() {
	defer self.cancel()
	self.goroutineId.Store(goroutineId())
	for {
		select {
		case <-self.ctx.Done():
			return
		case fn := <-self.events:
			HandleError(fn)
		}
		// a closure may close the loop. Do not run queued closures after that.
		select {
		case <-self.ctx.Done():
			return
		default:
		}
	}
}

// InLoop is true when called from a closure running on the loop.
func (self *Loop) InLoop() bool {
	return self.goroutineId.Load() == goroutineId()
}

func (self *Loop) Dispatch(fn func()) bool {
	select {
	case <-self.ctx.Done():
		glog.V(2).Infof("[l]dispatch after close\n")
		return false
	case self.events <- fn:
		return true
	}
}

// Call dispatches `fn` and waits for it to run. On the loop, `fn` runs immediately.
func (self *Loop) Call(fn func()) bool {
	if self.InLoop() {
		fn()
		return true
	}
	done := make(chan struct{})
	if !self.Dispatch(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-self.ctx.Done():
		return false
	case <-done:
		return true
	}
}

func (self *Loop) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Loop) Close() {
	self.cancel()
}

// parses the id from the stack header, `goroutine 18 [running]:`
func goroutineId() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
