package remember

import "errors"

// Sentinel errors for the admin API.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
	ErrUpstream   = errors.New("upstream lookup failed")
)
