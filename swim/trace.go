package swim

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Logging convention in the `swim` package:
// Info:
//     abnormal events only. Silent on normal operation.
//     - transport errors and reconnect scheduling
//     - dropped sends
// Warning:
//     panics raised by callbacks, even though they are suppressed
// V(1):
//     protocol level drops (malformed envelopes, non-text frames)
// V(2):
//     trace of individual envelopes and life cycle transitions, tagged
//     [c] channel, [d] downlink, [t] transport, [l] loop

// HandleError runs `do` and recovers a panic. The panic is logged and returned as an error.
// User callbacks run under HandleError so that one bad callback cannot stop the loop.
func HandleError(do func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("[p]unexpected panic = %s\n", panicJson(r, debug.Stack()))
			var ok bool
			if err, ok = r.(error); !ok {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	do()
	return nil
}

func panicJson(r any, stack []byte) string {
	frames := []string{}
	for _, line := range strings.Split(string(stack), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			frames = append(frames, line)
		}
	}
	out, _ := json.Marshal(map[string]any{
		"panic": fmt.Sprintf("%T=%v", r, r),
		"stack": frames,
	})
	return string(out)
}

// TraceWithReturnError logs the start and duration of `do`, and its error if any.
func TraceWithReturnError[R any](tag string, do func() (R, error)) (R, error) {
	start := time.Now()
	glog.Infof("[start]%s\n", tag)
	result, err := do()
	elapsed := time.Since(start)
	if err != nil {
		glog.Infof("[end]%s (%s) err = %s\n", tag, elapsed, err)
	} else {
		glog.Infof("[end]%s (%s)\n", tag, elapsed)
	}
	return result, err
}
