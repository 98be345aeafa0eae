// Package validation holds the declarative field-requirement sets checked
// before any payment side effect.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotUnique = errors.New("value already exists")
	ErrNotFound  = errors.New("value does not exist")
)

// FieldError reports the first rule a request failed.
type FieldError struct {
	Field string
	Rule  string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Rule, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Rule)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Lookup answers existence queries against the payment record store.
type Lookup interface {
	Exists(ctx context.Context, transactionCode string) (bool, error)
}

type Gate struct {
	v      *validator.Validate
	lookup Lookup
}

// NewGate returns a gate. lookup may be nil when no rule set carries store checks.
func NewGate(lookup Lookup) *Gate {
	return &Gate{v: newValidator(), lookup: lookup}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("string", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String
	})
	return v
}

// Check evaluates rules in order against data and stops at the first failure.
// Store checks run only after the field's tag constraints pass.
func (g *Gate) Check(ctx context.Context, data map[string]any, rules RuleSet) error {
	for _, r := range rules {
		for _, fv := range resolve(data, r.Field) {
			if err := g.checkTag(fv, r.Tag); err != nil {
				return err
			}
			if r.Store == NoStoreCheck {
				continue
			}
			if err := g.checkStore(ctx, fv, r.Store); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Gate) checkTag(fv fieldValue, tag string) error {
	if tag == "" {
		return nil
	}
	if isNil(fv.value) {
		if strings.HasPrefix(tag, "omitempty") {
			return nil
		}
		return &FieldError{Field: fv.path, Rule: "required"}
	}
	err := g.v.Var(fv.value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		rule := verrs[0].Tag()
		if p := verrs[0].Param(); p != "" {
			rule += "=" + p
		}
		return &FieldError{Field: fv.path, Rule: rule}
	}
	return fmt.Errorf("validate %s: %w", fv.path, err)
}

func (g *Gate) checkStore(ctx context.Context, fv fieldValue, check StoreCheck) error {
	if g.lookup == nil {
		return fmt.Errorf("validate %s: no store lookup configured", fv.path)
	}
	code := fmt.Sprint(fv.value)
	exists, err := g.lookup.Exists(ctx, code)
	if err != nil {
		return fmt.Errorf("validate %s: %w", fv.path, err)
	}
	switch {
	case check == Unique && exists:
		return &FieldError{Field: fv.path, Rule: "unique", Err: ErrNotUnique}
	case check == Exists && !exists:
		return &FieldError{Field: fv.path, Rule: "exists", Err: ErrNotFound}
	}
	return nil
}

type fieldValue struct {
	path  string
	value any
}

// resolve expands a rule path against data. "items.*.name" yields one value per
// element of data["items"]; a missing or empty collection yields nothing, so the
// collection itself needs its own rule.
func resolve(data map[string]any, path string) []fieldValue {
	parts := strings.Split(path, ".")
	out := []fieldValue{{path: "", value: data}}
	for _, part := range parts {
		next := make([]fieldValue, 0, len(out))
		for _, cur := range out {
			if part == "*" {
				for i, el := range asSlice(cur.value) {
					next = append(next, fieldValue{path: join(cur.path, strconv.Itoa(i)), value: el})
				}
				continue
			}
			var v any
			if m, ok := cur.value.(map[string]any); ok {
				v = m[part]
			}
			next = append(next, fieldValue{path: join(cur.path, part), value: v})
		}
		out = next
	}
	return out
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	}
	return nil
}

func join(prefix, part string) string {
	if prefix == "" {
		return part
	}
	return prefix + "." + part
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
