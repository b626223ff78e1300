package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Title    string `validate:"required,max=5"`
	Priority string `validate:"omitempty,oneof=normal high"`
	Kind     string `validate:"kind"`
}

func TestValidate(t *testing.T) {
	v := New(Rule{Tag: "kind", Check: func(value interface{}) bool {
		s, _ := value.(string)
		return s == "a" || s == "b"
	}})

	assert.NoError(t, v.Validate(sample{Title: "hi", Kind: "a"}))

	err := v.Validate(sample{Title: "", Priority: "urgent", Kind: "z"})
	assert.ErrorContains(t, err, "Title is required")
	assert.ErrorContains(t, err, "Priority must be one of [normal high]")
	assert.ErrorContains(t, err, "Kind failed kind")

	assert.ErrorContains(t, v.Validate(&sample{Title: "toolong", Kind: "b"}), "Title must not exceed 5")
}

func TestValidateField(t *testing.T) {
	v := New()
	assert.NoError(t, v.ValidateField("days", 3, "gte=1"))
	assert.ErrorContains(t, v.ValidateField("days", 0, "gte=1"), "days")
}
