package health

import (
	"fmt"
	"runtime"
)

// TooManyGoroutinesError is returned by GoroutineCountCheck when the
// goroutine count exceeds its limit.
type TooManyGoroutinesError struct {
	Count int
	Limit int
}

func (e *TooManyGoroutinesError) Error() string {
	return fmt.Sprintf("%d goroutines running, limit %d", e.Count, e.Limit)
}

func numGoroutine() int {
	return runtime.NumGoroutine()
}
