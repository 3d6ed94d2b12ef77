package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeseriesQuery is a historic timeseries request for one entity.
type TimeseriesQuery struct {
	EntityID string    `validate:"required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtefield=Start"`
}

// RequestValidator checks caller input before anything goes on the wire.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate checks if the query parameters are valid
func (v *RequestValidator) Validate(q TimeseriesQuery) error {
	err := v.validate.Struct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	fe := verrs[0]
	switch {
	case fe.Field() == "EntityID":
		return fmt.Errorf("%w: missing entity id", ErrInvalidQuery)
	case fe.Tag() == "required":
		return fmt.Errorf("%w: missing timestamp", ErrInvalidQuery)
	case fe.Tag() == "gtefield":
		return fmt.Errorf("%w: start time must not be after end time", ErrInvalidQuery)
	default:
		return fmt.Errorf("%w: %s failed on %s", ErrInvalidQuery, fe.Field(), fe.Tag())
	}
}

// ValidateID checks a single opaque identifier used as a path component.
func (v *RequestValidator) ValidateID(kind, id string) error {
	if err := v.validate.Var(id, "required"); err != nil {
		return fmt.Errorf("%w: missing %s id", ErrInvalidQuery, kind)
	}
	return nil
}

// ValidatePage checks an entity listing page number.
func (v *RequestValidator) ValidatePage(page int) error {
	if err := v.validate.Var(page, "gte=0"); err != nil {
		return fmt.Errorf("%w: page must not be negative: %d", ErrInvalidQuery, page)
	}
	return nil
}
