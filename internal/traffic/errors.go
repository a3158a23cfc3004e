package traffic

import "errors"

// ErrInvalidArgument is returned (wrapped) by the engine packages when a
// caller passes input that cannot be processed: empty series, a
// non-positive period, an empty point set.
var ErrInvalidArgument = errors.New("invalid argument")
