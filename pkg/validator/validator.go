package validator

import (
	"errors"
	"fmt"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules string) error
}

type validator struct {
	v *playground.Validate
}

// Rule is a custom validation tag.
type Rule struct {
	Tag   string
	Check func(value interface{}) bool
}

// New returns a validator reading "validate" struct tags, with rules
// registered as additional tags.
func New(rules ...Rule) Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	for _, r := range rules {
		check := r.Check
		// tags are static, registration only fails on an empty tag
		_ = v.RegisterValidation(r.Tag, func(fl playground.FieldLevel) bool {
			return check(fl.Field().Interface())
		})
	}
	return &validator{v: v}
}

func (v *validator) Validate(obj interface{}) error {
	return describe(v.v.Struct(obj))
}

func (v *validator) ValidateField(field string, value interface{}, rules string) error {
	if err := v.v.Var(value, rules); err != nil {
		return fmt.Errorf("%s %w", field, describe(err))
	}
	return nil
}

// describe flattens validator errors into one readable message.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = "value"
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", name))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must not exceed %s", name, fe.Param()))
		case "min", "gt", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", name, fe.Tag(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", name, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
