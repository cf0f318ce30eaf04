package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Validator validates record attributes against a spec's columns and rules.
type Validator struct {
	spec   *core.Spec
	mapper *TypeMapper
}

// NewValidator creates a validator for spec.
func NewValidator(spec *core.Spec) *Validator {
	return &Validator{
		spec:   spec,
		mapper: NewTypeMapper(),
	}
}

// Validate checks attrs and returns the error messages per attribute.
// A new record must supply every non-nullable column that has no default
// and is not filled by the engine. An empty result means the record is valid.
func (v *Validator) Validate(attrs map[string]any, isNew bool) map[string][]string {
	errs := make(map[string][]string)
	add := func(attr, msg string) {
		errs[attr] = append(errs[attr], msg)
	}

	for _, name := range v.spec.Attributes() {
		col := v.spec.Columns[name]
		value, present := attrs[name]

		if !present || value == nil {
			if col.Nullable || col.AutoIncrement || name == v.spec.AutoIncrement {
				continue
			}
			if present || (isNew && col.Default == nil) {
				add(name, fmt.Sprintf("column '%s' cannot be NULL", name))
			}
			continue
		}

		if err := v.checkType(col, value); err != nil {
			add(name, fmt.Sprintf("column '%s': %v", name, err))
		}
	}

	for _, rule := range v.spec.Rules {
		for _, attr := range rule.Attributes {
			if msg := v.applyRule(rule, attr, attrs); msg != "" {
				add(attr, msg)
			}
		}
	}

	return errs
}

func (v *Validator) checkType(col core.Column, value any) error {
	if col.Type == "" {
		return nil
	}
	switch value.(type) {
	case core.Raw, core.JSON:
		return nil
	}
	if _, err := v.mapper.Convert(value, col.Type); err != nil {
		return fmt.Errorf("type mismatch: expected %s, got %T: %w", col.Type, value, err)
	}
	return nil
}

func (v *Validator) applyRule(rule core.Rule, attr string, attrs map[string]any) string {
	value, present := attrs[attr]
	blank := !present || value == nil || value == ""

	message := func(generated string) string {
		if rule.Message != "" {
			return rule.Message
		}
		return generated
	}

	if rule.Required && blank {
		return message(fmt.Sprintf("%s cannot be blank", attr))
	}
	if blank {
		return ""
	}
	if rule.MaxLength > 0 {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > rule.MaxLength {
			return message(fmt.Sprintf("%s should contain at most %d characters", attr, rule.MaxLength))
		}
	}
	if rule.Check != nil {
		if err := rule.Check(value); err != nil {
			return message(fmt.Sprintf("%s %v", attr, err))
		}
	}
	return ""
}
