package pool

import "github.com/ajitpratap0/imagepool/pkg/poolerrors"

// Sentinel errors returned by pools. Returned instances carry details
// (size, caps) and match these with errors.Is.
var (
	// ErrInvalidSize is returned for requested or bucketed sizes <= 0.
	ErrInvalidSize = poolerrors.New(poolerrors.ErrorTypeValidation, "invalid size")
	// ErrSizeTooLarge is returned when a request exceeds the largest bucket.
	ErrSizeTooLarge = poolerrors.New(poolerrors.ErrorTypeValidation, "size too large")
	// ErrPoolSizeViolation is returned when an allocation would breach the
	// hard cap. Callers fall back to unpooled work.
	ErrPoolSizeViolation = poolerrors.New(poolerrors.ErrorTypeCapacity, "pool hard cap violation")
	// ErrInvalidValue is returned for values a pool cannot account for.
	ErrInvalidValue = poolerrors.New(poolerrors.ErrorTypeValidation, "invalid value")
	// ErrInvalidParams is returned by PoolParams.Validate.
	ErrInvalidParams = poolerrors.New(poolerrors.ErrorTypeConfig, "invalid pool params")
	// ErrInUse is returned by SingleByteArrayPool when its array is taken.
	ErrInUse = poolerrors.New(poolerrors.ErrorTypeState, "byte array currently in use")
)

func invalidSize(size int) error {
	return poolerrors.New(poolerrors.ErrorTypeValidation, ErrInvalidSize.Message).
		WithDetail("size", size)
}

func sizeTooLarge(size, max int) error {
	return poolerrors.New(poolerrors.ErrorTypeValidation, ErrSizeTooLarge.Message).
		WithDetail("size", size).
		WithDetail("max", max)
}

func invalidParams(reason string, key string, value interface{}) error {
	return poolerrors.New(poolerrors.ErrorTypeConfig, ErrInvalidParams.Message).
		WithDetail("reason", reason).
		WithDetail(key, value)
}
