package enums

import (
	"fmt"
	"strings"
)

// DecreasePolicy decides what happens when a quantity of one is decreased.
type DecreasePolicy string

const (
	// DecreasePolicyDeleteOnZero removes the entry when it would reach zero.
	DecreasePolicyDeleteOnZero DecreasePolicy = "delete_on_zero"
	// DecreasePolicyClampAtOne keeps the entry at one.
	DecreasePolicyClampAtOne DecreasePolicy = "clamp_at_one"
)

var validDecreasePolicies = []DecreasePolicy{
	DecreasePolicyDeleteOnZero,
	DecreasePolicyClampAtOne,
}

// String implements fmt.Stringer.
func (p DecreasePolicy) String() string {
	return string(p)
}

// IsValid reports whether the value is a known DecreasePolicy.
func (p DecreasePolicy) IsValid() bool {
	for _, candidate := range validDecreasePolicies {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseDecreasePolicy converts raw input into a DecreasePolicy.
func ParseDecreasePolicy(value string) (DecreasePolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDecreasePolicies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid decrease policy %q", value)
}
