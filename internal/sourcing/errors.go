package sourcing

import (
	"context"
	"errors"
	"fmt"
)

// APIError is a non-2xx response from the sourcing backend or a feature route.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sourcing api error (%d): %s", e.Status, e.Message)
}

// IsLimitReached reports whether the feature usage limit was hit.
func (e *APIError) IsLimitReached() bool {
	return e.Status == 429
}

// IsCanceled reports whether err came from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
