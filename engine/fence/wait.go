package fence

import "time"

// WaitAll waits on every non-nil fence in order, sharing a single deadline across all of them.
// A timeout <= 0 waits without a bound.
//
// Parameters:
//   - timeout: the total time budget for all fences
//   - fences: the fences to wait on (nil entries are skipped)
//
// Returns:
//   - error: ErrWaitTimeout if any fence was still unsignaled when the budget ran out
func WaitAll(timeout time.Duration, fences ...Fence) error {
	if timeout <= 0 {
		for _, f := range fences {
			if f != nil {
				_ = f.Wait(0)
			}
		}
		return nil
	}

	deadline := time.Now().Add(timeout)
	for _, f := range fences {
		if f == nil || f.Signaled() {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if err := f.Wait(remaining); err != nil {
			return err
		}
	}
	return nil
}
