package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct against its `validate` tags
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) error {
	rules := strings.Split(tag, ",")

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]

		var arg int
		if len(parts) == 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return fmt.Errorf("bad validate rule %q", rule)
			}
			arg = n
		}

		switch ruleName {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "email":
			if field.Kind() == reflect.String {
				email := field.String()
				if !strings.Contains(email, "@") {
					return fmt.Errorf("invalid email format")
				}
			}

		case "min":
			if size, ok := fieldSize(field); ok && size < int64(arg) {
				return fmt.Errorf("minimum is %d", arg)
			}

		case "max":
			if size, ok := fieldSize(field); ok && size > int64(arg) {
				return fmt.Errorf("maximum is %d", arg)
			}

		case "len":
			if size, ok := fieldSize(field); ok && size != int64(arg) {
				return fmt.Errorf("length must be %d", arg)
			}
		}
	}

	return nil
}

// fieldSize returns the value to compare for min/max/len rules: the length
// for strings and slices, the value itself for numbers.
func fieldSize(field reflect.Value) (int64, bool) {
	switch field.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return int64(field.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(field.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(field.Float()), true
	default:
		return 0, false
	}
}
