package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Violations struct {
	Errors map[string][]error
}

func (violations Violations) IsEmpty() bool {
	return len(violations.Errors) == 0
}

func (violations Violations) Error() string {
	fields := make([]string, 0, len(violations.Errors))
	for field := range violations.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		for j, err := range violations.Errors[field] {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(err.Error())
		}
	}

	return b.String()
}

// ValidateForm checks multi-valued form data against per-field rules.
// Supported rules: present (key occurs), required (key occurs with a
// non-empty first value), single (key occurs at most once), max:N (first
// value at most N bytes) and integer.
func ValidateForm(data map[string][]string, rules map[string][]string) Violations {
	var violations Violations
	violations.Errors = make(map[string][]error)

	for attributeName, attributeRules := range rules {
		values, found := data[attributeName]

		var errorCollection []error
		for _, attributeRule := range attributeRules {
			if err := validate(attributeRule, attributeName, values, found); err != nil {
				errorCollection = append(errorCollection, err)
			}
		}

		if len(errorCollection) != 0 {
			violations.Errors[attributeName] = errorCollection
		}
	}

	return violations
}

func validate(rule string, name string, values []string, found bool) error {
	first := ""
	if len(values) > 0 {
		first = values[0]
	}

	ruleName, argument, _ := strings.Cut(rule, ":")

	switch ruleName {
	case "present":
		if !found {
			return fmt.Errorf("%s is missing", name)
		}
	case "required":
		if first == "" {
			return fmt.Errorf("%s is required", name)
		}
	case "single":
		if len(values) > 1 {
			return fmt.Errorf("%s is given %d times", name, len(values))
		}
	case "max":
		limit, err := strconv.Atoi(argument)
		if err != nil {
			return fmt.Errorf("invalid validation rule :: %s", rule)
		}
		if len(first) > limit {
			return fmt.Errorf("%s is longer than %d", name, limit)
		}
	case "integer":
		if found && !ValidateInteger(first) {
			return fmt.Errorf("%s is not an integer", name)
		}
	default:
		return fmt.Errorf("invalid validation rule :: %s", rule)
	}

	return nil
}

func ValidateInteger(value string) bool {
	_, err := strconv.Atoi(value)
	return err == nil
}
