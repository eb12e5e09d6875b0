package metrics

import "errors"

// ErrRegisterFailed wraps a collector registration failure.
var ErrRegisterFailed = errors.New("metrics: register failed")
