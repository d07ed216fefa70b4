package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidShippingMethod is returned for methods outside the fee table.
var ErrInvalidShippingMethod = errors.New("invalid shipping method")

// Method identifies a flat-rate shipping option.
type Method string

const (
	MethodStandard Method = "STANDARD"
	MethodExpress  Method = "EXPRESS"
)

// DefaultMethod is used when a cart has not chosen a method yet.
const DefaultMethod = MethodStandard

// ParseMethod normalises user input into a known Method.
func ParseMethod(value string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(value)))
	switch m {
	case MethodStandard, MethodExpress:
		return m, nil
	case "":
		return DefaultMethod, nil
	default:
		return "", fmt.Errorf("%q: %w", value, ErrInvalidShippingMethod)
	}
}

// FeeTable maps shipping methods to their flat fee.
type FeeTable map[Method]Money

// DefaultFees mirrors the storefront defaults in VND.
func DefaultFees() FeeTable {
	return FeeTable{
		MethodStandard: 30_000,
		MethodExpress:  50_000,
	}
}

// Fee resolves the fee for m, falling back to the standard fee when m is empty.
func (t FeeTable) Fee(m Method) (Money, error) {
	if m == "" {
		m = DefaultMethod
	}
	fee, ok := t[m]
	if !ok {
		return 0, fmt.Errorf("%q: %w", m, ErrInvalidShippingMethod)
	}
	return fee, nil
}
