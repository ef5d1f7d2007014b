package domain

import "errors"

// Lookup errors. Repositories wrap them with the offending value.
var (
	ErrUnsupportedNetwork    = errors.New("unsupported station network")
	ErrUnsupportedProjection = errors.New("unsupported projection")
	ErrUnsupportedProducer   = errors.New("unsupported producer")
	ErrInvalidPeriod         = errors.New("invalid period")
)
