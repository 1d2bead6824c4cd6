package validator

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Required rejects empty or whitespace-only strings.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required", Code: "required"},
	}
}

// MaxLen limits the byte length of value.
func MaxLen(field, value string, limit int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= limit },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters long", limit),
			Code:    "max_length",
		},
	}
}

// ValidUUID requires the canonical 36-character UUID form.
func ValidUUID(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != 36 {
				return false
			}
			_, err := uuid.Parse(value)
			return err == nil
		},
		Error: ValidationError{Field: field, Message: "must be a valid UUID", Code: "uuid"},
	}
}

// ValidEmail accepts a bare RFC 5322 address with a dotted domain.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}
			at := strings.LastIndexByte(value, '@')
			domain := value[at+1:]
			return at > 0 && strings.Contains(domain, ".") &&
				!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address", Code: "email"},
	}
}

// OneOf requires value to be one of options.
func OneOf[T comparable](field string, value T, options []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(options, value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of %v", options),
			Code:    "one_of",
		},
	}
}

// NotNilMap rejects a nil map. An empty map passes.
func NotNilMap[K comparable, V any](field string, value map[K]V) Rule {
	return Rule{
		Check: func() bool { return value != nil },
		Error: ValidationError{Field: field, Message: "field is required", Code: "required"},
	}
}

// Min requires value to be at least min.
func Min(field string, value, min int) Rule {
	return Rule{
		Check: func() bool { return value >= min },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d", min),
			Code:    "min",
		},
	}
}
