package dispatcher

import "errors"

// ErrStopped is returned by wrapped handlers once the queue is stopped
var ErrStopped = errors.New("dispatcher: stopped")
