package ledger

import (
	"fmt"

	"github.com/abu1020/tea-notes-premium/internal/util"
)

// Validate rejects a draft before any state changes. Payments skip the
// quantity check because their quantity is forced to 1.
func (d Draft) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrValidation, d.Type)
	}
	if err := util.ValidateUser(d.User); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !d.Type.IsPayment() {
		if err := util.ValidatePositive("quantity", d.Quantity); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if err := util.ValidatePositive("price", d.Price); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if d.Date != "" {
		if _, err := util.ParseDate(d.Date); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}
