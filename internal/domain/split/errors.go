package split

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTotal   = errors.New("total must be positive")
	ErrInvalidOrderID = errors.New("order id is required")
	ErrMissingBalance = errors.New("all four balance references are required")
)

// PartialPostingError is a split that stopped after some legs were committed.
// Posted legs stay posted; reconciliation happens outside this service.
type PartialPostingError struct {
	OrderID   string
	Posted    []PostedLeg
	FailedLeg Leg
	Err       error
}

func (e *PartialPostingError) Error() string {
	return fmt.Sprintf("split %s: %d legs posted, %s leg failed: %v", e.OrderID, len(e.Posted), e.FailedLeg.Name, e.Err)
}

func (e *PartialPostingError) Unwrap() error {
	return e.Err
}
