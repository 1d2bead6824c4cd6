package validator_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

func TestValidationErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		var errs validator.ValidationErrors
		assert.Equal(t, "validation failed", errs.Error())
	})

	t.Run("fields grouped", func(t *testing.T) {
		t.Parallel()

		var errs validator.ValidationErrors
		errs.Add(validator.ValidationError{Field: "userId", Message: "field is required"})
		errs.Add(validator.ValidationError{Field: "type", Message: "must be one of [A]"})
		errs.Add(validator.ValidationError{Field: "userId", Message: "too long"})

		assert.Equal(t, "validation failed: userId: field is required; type: must be one of [A]; userId: too long", errs.Error())
		assert.True(t, errs.Has("type"))
		assert.False(t, errs.Has("payload"))
		assert.Equal(t, map[string][]string{
			"userId": {"field is required", "too long"},
			"type":   {"must be one of [A]"},
		}, errs.Fields())
	})
}

func TestApply(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(
		validator.Required("userId", "u1"),
		validator.MaxLen("userId", "u1", 256),
	))

	err := validator.Apply(
		validator.Required("userId", " "),
		validator.OneOf("type", "NOPE", []string{"USER_SIGNUP"}),
		validator.When(false, validator.ValidUUID("eventId", "x")),
	)
	require.Error(t, err)
	assert.True(t, validator.IsValidationError(err))

	ve := validator.ExtractValidationErrors(fmt.Errorf("ingest: %w", err))
	require.Len(t, ve, 2)
	assert.Equal(t, "required", ve[0].Code)
	assert.Equal(t, "one_of", ve[1].Code)

	assert.Nil(t, validator.ExtractValidationErrors(nil))
	assert.False(t, validator.IsValidationError(nil))
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule validator.Rule
		ok   bool
	}{
		{"required ok", validator.Required("f", "x"), true},
		{"required blank", validator.Required("f", "  "), false},
		{"max len ok", validator.MaxLen("f", "abc", 3), true},
		{"max len over", validator.MaxLen("f", strings.Repeat("a", 257), 256), false},
		{"uuid ok", validator.ValidUUID("f", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"), true},
		{"uuid no hyphens", validator.ValidUUID("f", "6ba7b8109dad11d180b400c04fd430c8"), false},
		{"uuid garbage", validator.ValidUUID("f", "evt-1"), false},
		{"email ok", validator.ValidEmail("f", "u1@x.com"), true},
		{"email display name", validator.ValidEmail("f", "U <u1@x.com>"), false},
		{"email no dot", validator.ValidEmail("f", "u1@localhost"), false},
		{"email trailing dot", validator.ValidEmail("f", "u1@x."), false},
		{"one of ok", validator.OneOf("f", 2, []int{1, 2}), true},
		{"one of miss", validator.OneOf("f", 3, []int{1, 2}), false},
		{"map empty ok", validator.NotNilMap("f", map[string]any{}), true},
		{"map nil", validator.NotNilMap[string, any]("f", nil), false},
		{"min equal", validator.Min("f", 0, 0), true},
		{"min below", validator.Min("f", -1, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, tt.rule.Check())
		})
	}
}
