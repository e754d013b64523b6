// Package version compares dotted numeric version strings as reported by
// network devices (e.g. "14.1.0"). Components are compared as integers and
// missing trailing components are treated as zero, so "14.1" == "14.1.0".
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/devstream/errors"
)

// Comparator is an enumerated comparison operator. String-driven dispatch is
// rejected at the boundary: ParseComparator fails on anything unrecognized.
type Comparator int

const (
	// Eq tests for equality
	Eq Comparator = iota
	// Ne tests for inequality
	Ne
	// Lt tests for strictly less than
	Lt
	// Le tests for less than or equal
	Le
	// Gt tests for strictly greater than
	Gt
	// Ge tests for greater than or equal
	Ge
)

// String returns the canonical operator symbol
func (c Comparator) String() string {
	switch c {
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "unknown"
	}
}

// ParseComparator converts an operator string to a Comparator.
// "=" is accepted as an alias for "==". Any other string fails
// with a config-class error.
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "==", "=":
		return Eq, nil
	case "!=":
		return Ne, nil
	case "<":
		return Lt, nil
	case "<=":
		return Le, nil
	case ">":
		return Gt, nil
	case ">=":
		return Ge, nil
	default:
		return 0, errors.WrapConfig(
			fmt.Errorf("%w: %q", errors.ErrUnknownComparator, s),
			"version", "ParseComparator", "operator lookup")
	}
}

// CompareStrings compares two version strings with a string operator.
// Convenience for callers holding the operator in declarative form.
func CompareStrings(a, op, b string) (bool, error) {
	cmp, err := ParseComparator(op)
	if err != nil {
		return false, err
	}
	return Compare(a, cmp, b)
}

// Compare evaluates "a cmp b" over dotted numeric versions
func Compare(a string, cmp Comparator, b string) (bool, error) {
	rel, err := relate(a, b)
	if err != nil {
		return false, err
	}

	switch cmp {
	case Eq:
		return rel == 0, nil
	case Ne:
		return rel != 0, nil
	case Lt:
		return rel < 0, nil
	case Le:
		return rel <= 0, nil
	case Gt:
		return rel > 0, nil
	case Ge:
		return rel >= 0, nil
	default:
		return false, errors.WrapConfig(
			fmt.Errorf("%w: %d", errors.ErrUnknownComparator, int(cmp)),
			"version", "Compare", "operator dispatch")
	}
}

// GreaterOrEqual reports whether version a >= version b
func GreaterOrEqual(a, b string) (bool, error) {
	return Compare(a, Ge, b)
}

// relate returns -1, 0 or 1 for a < b, a == b, a > b
func relate(a, b string) (int, error) {
	partsA, err := parse(a)
	if err != nil {
		return 0, err
	}
	partsB, err := parse(b)
	if err != nil {
		return 0, err
	}

	n := len(partsA)
	if len(partsB) > n {
		n = len(partsB)
	}
	for i := 0; i < n; i++ {
		// Missing trailing components compare as zero
		var va, vb int
		if i < len(partsA) {
			va = partsA[i]
		}
		if i < len(partsB) {
			vb = partsB[i]
		}
		if va != vb {
			if va > vb {
				return 1, nil
			}
			return -1, nil
		}
	}
	return 0, nil
}

// parse splits a dotted version string into integer components
func parse(v string) ([]int, error) {
	if v == "" {
		return nil, errors.WrapConfig(
			fmt.Errorf("version cannot be empty"),
			"version", "parse", "version validation")
	}

	raw := strings.Split(v, ".")
	parts := make([]int, 0, len(raw))
	for _, p := range raw {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.WrapConfig(
				fmt.Errorf("invalid version component %q in %q: %w", p, v, err),
				"version", "parse", "component parsing")
		}
		parts = append(parts, n)
	}
	return parts, nil
}
