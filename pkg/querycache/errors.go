package querycache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when an adapter is built from bad arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMissingID is returned for an empty cache id.
	ErrMissingID = fmt.Errorf("%w: cache instances require an ID", ErrInvalidArgument)
	// ErrEncoding wraps failures to encode or decode keys and values.
	ErrEncoding = errors.New("query cache encoding failed")
)
