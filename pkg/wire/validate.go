package wire

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation wraps every malformed-payload failure so handlers can
// fail fast at the protocol boundary without touching the store.
var ErrValidation = staticErr("validation failed")

type staticErr string

func (e staticErr) Error() string { return string(e) }

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodePayload unmarshals a request payload into dst and runs the
// struct validation tags. A missing payload decodes to the zero value,
// which still has to pass validation.
func DecodePayload(raw json.RawMessage, dst any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
