// Package predicate defines the comparison operators applicable to each
// column kind. Numeric comparisons treat NaN as the "no value" sentinel,
// string comparisons match the reference value as a regular expression, and
// media kinds compare by reference identity only.
package predicate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/facet-org/facet/pkg/schema"
)

// Predicate is one comparison operator: a stable name, a display shorthand,
// and the comparison itself. Compare receives the row's value and the
// filter's reference value and reports whether the row matches.
type Predicate struct {
	Name      string
	Shorthand string
	Compare   func(value, reference any) bool
}

var numericSet = []Predicate{
	{Name: "equal", Shorthand: "==", Compare: numEqual},
	{Name: "unequal", Shorthand: "!=", Compare: numUnequal},
	{Name: "greater", Shorthand: ">", Compare: numGreater},
	{Name: "lesser", Shorthand: "<", Compare: numLesser},
	{Name: "greaterOrEqual", Shorthand: ">=", Compare: numGreaterOrEqual},
	{Name: "lesserOrEqual", Shorthand: "<=", Compare: numLesserOrEqual},
}

var boolSet = []Predicate{
	{Name: "equal", Shorthand: "==", Compare: boolEqual},
}

var stringSet = []Predicate{
	{Name: "equal", Shorthand: "==", Compare: stringEqual},
	{Name: "unequal", Shorthand: "!=", Compare: stringUnequal},
}

var identitySet = []Predicate{
	{Name: "equal", Shorthand: "==", Compare: identityEqual},
	{Name: "unequal", Shorthand: "!=", Compare: identityUnequal},
}

func setForKind(kind schema.Kind) []Predicate {
	switch kind {
	case schema.KindInt, schema.KindFloat, schema.KindDateTime:
		return numericSet
	case schema.KindBool:
		return boolSet
	case schema.KindString, schema.KindCategory:
		return stringSet
	case schema.KindArray, schema.KindEmbedding, schema.KindSequence1D,
		schema.KindMesh, schema.KindImage, schema.KindVideo, schema.KindAudio:
		return identitySet
	default:
		return nil
	}
}

// ForKind returns the predicates applicable to a column kind, keyed by name.
// Kinds without comparison support yield an empty map. The returned map is a
// copy the caller may modify.
func ForKind(kind schema.Kind) map[string]Predicate {
	set := setForKind(kind)
	out := make(map[string]Predicate, len(set))
	for _, p := range set {
		out[p.Name] = p
	}
	return out
}

// HasPredicates reports whether any predicate applies to the kind.
func HasPredicates(kind schema.Kind) bool {
	return len(setForKind(kind)) > 0
}

// Lookup returns one applicable predicate by name.
func Lookup(kind schema.Kind, name string) (Predicate, bool) {
	for _, p := range setForKind(kind) {
		if p.Name == name {
			return p, true
		}
	}
	return Predicate{}, false
}

// CompileMatcher compiles the reference value into a whole-string regexp
// matcher. An invalid pattern is reported as the returned error together
// with a literal containment matcher, so callers can warn and keep
// filtering in degraded form.
func CompileMatcher(reference string) (func(string) bool, error) {
	re, err := regexp.Compile("^(?:" + reference + ")$")
	if err != nil {
		matcher := func(s string) bool { return strings.Contains(s, reference) }
		return matcher, fmt.Errorf("invalid pattern %q: %w", reference, err)
	}
	return re.MatchString, nil
}

// coerceFloat maps comparable values onto the float64 axis. nil coerces to
// NaN so that missing values and the NaN sentinel compare alike.
func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case time.Time:
		return float64(x.UnixMicro()), true
	default:
		return 0, false
	}
}

func numEqual(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func numUnequal(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) != math.IsNaN(b)
	}
	return a != b
}

func numGreater(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	return a > b
}

func numLesser(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	return a < b
}

func numGreaterOrEqual(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a >= b
}

func numLesserOrEqual(value, reference any) bool {
	a, ok := coerceFloat(value)
	if !ok {
		return false
	}
	b, ok := coerceFloat(reference)
	if !ok {
		return false
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a <= b
}

func boolEqual(value, reference any) bool {
	if value == nil || reference == nil {
		return value == nil && reference == nil
	}
	a, aok := value.(bool)
	b, bok := reference.(bool)
	return aok && bok && a == b
}

func stringEqual(value, reference any) bool {
	if value == nil || reference == nil {
		return value == nil && reference == nil
	}
	ref, ok := reference.(string)
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	match, _ := CompileMatcher(ref)
	return match(s)
}

func stringUnequal(value, reference any) bool {
	if value == nil || reference == nil {
		return !(value == nil && reference == nil)
	}
	ref, ok := reference.(string)
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	match, _ := CompileMatcher(ref)
	return !match(s)
}

func identityEqual(value, reference any) bool {
	if value == nil || reference == nil {
		return value == nil && reference == nil
	}
	a, ok := value.(string)
	if !ok {
		return false
	}
	b, ok := reference.(string)
	return ok && a == b
}

func identityUnequal(value, reference any) bool {
	return !identityEqual(value, reference)
}
