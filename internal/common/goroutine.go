// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs fn in a goroutine with panic recovery.
// A panic is logged with its stack and the process keeps running.
//
// Example:
//
//	common.SafeGo(logger, "agentRun", func() {
//	    agent.Run(ctx, jobID)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverGoroutine(logger, name)
		fn()
	}()
}

// SafeGoWithContext is SafeGo that skips fn entirely when ctx is already cancelled.
func SafeGoWithContext(ctx context.Context, logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverGoroutine(logger, name)

		select {
		case <-ctx.Done():
			if logger != nil {
				logger.Debug().Str("goroutine", name).Msg("Goroutine cancelled before start")
			}
			return
		default:
		}

		fn()
	}()
}

func recoverGoroutine(logger arbor.ILogger, name string) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stackTrace := string(buf[:n])

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stackTrace).
			Msg("Recovered from panic in goroutine - continuing service operation")
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
}
