package fence

import "errors"

// ErrWaitTimeout is returned by Fence.Wait when the fence was not signaled within the timeout.
var ErrWaitTimeout = errors.New("fence: wait timed out")
