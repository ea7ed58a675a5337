package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// FieldError describes a single rule violation
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every violation found in a struct
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a struct based on validate tags.
//
// Supported rules: required, email, min=N, max=N, gte=N, lte=N, oneof=A B C.
// min/max count characters (runes) for strings, elements for slices and compare
// the value for numbers. A nil pointer skips every rule except required.
// Field names in messages come from the json tag when present.
func ValidateStruct(s interface{}) error {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return errors.New("not a struct")
	}

	var errs ValidationErrors
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" || !field.IsExported() {
			continue
		}

		name := fieldName(field)
		value := v.Field(i)

		rules := strings.Split(tag, ",")
		for _, rule := range rules {
			if err := validateField(name, value, strings.TrimSpace(rule)); err != nil {
				errs = append(errs, FieldError{Field: name, Message: err.Error()})
				break
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldName prefers the json name of a field
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// validateField validates a single field based on a rule
func validateField(fieldName string, value reflect.Value, rule string) error {
	if rule == "required" {
		if isZero(value) {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	// Optional values are only checked when set
	if value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}

	switch {
	case rule == "email":
		if value.Kind() == reflect.String {
			if err := ValidateEmail(value.String()); err != nil {
				return fmt.Errorf("%s must be a valid email", fieldName)
			}
		}
	case strings.HasPrefix(rule, "min="):
		n, err := strconv.Atoi(strings.TrimPrefix(rule, "min="))
		if err != nil {
			return fmt.Errorf("invalid rule %q", rule)
		}
		if size, ok := measure(value); ok && size < float64(n) {
			if value.Kind() == reflect.String {
				return fmt.Errorf("%s must be at least %d characters", fieldName, n)
			}
			return fmt.Errorf("%s must be at least %d", fieldName, n)
		}
	case strings.HasPrefix(rule, "max="):
		n, err := strconv.Atoi(strings.TrimPrefix(rule, "max="))
		if err != nil {
			return fmt.Errorf("invalid rule %q", rule)
		}
		if size, ok := measure(value); ok && size > float64(n) {
			if value.Kind() == reflect.String {
				return fmt.Errorf("%s must be at most %d characters", fieldName, n)
			}
			return fmt.Errorf("%s must be at most %d", fieldName, n)
		}
	case strings.HasPrefix(rule, "gte="), strings.HasPrefix(rule, "lte="):
		n, err := strconv.ParseFloat(rule[4:], 64)
		if err != nil {
			return fmt.Errorf("invalid rule %q", rule)
		}
		num, ok := number(value)
		if !ok {
			return nil
		}
		if strings.HasPrefix(rule, "gte=") && num < n {
			return fmt.Errorf("%s must be greater than or equal to %s", fieldName, rule[4:])
		}
		if strings.HasPrefix(rule, "lte=") && num > n {
			return fmt.Errorf("%s must be less than or equal to %s", fieldName, rule[4:])
		}
	case strings.HasPrefix(rule, "oneof="):
		allowed := strings.Fields(strings.TrimPrefix(rule, "oneof="))
		if value.Kind() != reflect.String {
			return nil
		}
		for _, a := range allowed {
			if value.String() == a {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of [%s]", fieldName, strings.Join(allowed, ", "))
	}
	return nil
}

// measure returns the size used by min/max: rune count, element count or numeric value
func measure(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.String:
		return float64(utf8.RuneCountInString(v.String())), true
	case reflect.Slice, reflect.Array, reflect.Map:
		return float64(v.Len()), true
	default:
		return number(v)
	}
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

// isZero checks if a value is zero/empty
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return false
	}
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailRegex.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(SanitizeString(email))
}
