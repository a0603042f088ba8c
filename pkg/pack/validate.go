package pack

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validate checks a parsed document against the registered schema for the
// expected kind and returns the typed pack. All violations are collected; the
// returned error is a *ValidationFailure when the document is rejected.
func Validate(document any, expected Kind) (*Pack, error) {
	if _, err := ParseKind(string(expected)); err != nil {
		return nil, failure(expected, "", Violation{Path: "kind", Reason: err.Error()})
	}

	raw, generic, err := canonicalize(document)
	if err != nil {
		return nil, failure(expected, "", Violation{Reason: err.Error()})
	}
	top, ok := generic.(map[string]interface{})
	if !ok {
		return nil, failure(expected, "", Violation{Reason: fmt.Sprintf("top level must be a mapping, got %s", jsonType(generic))})
	}

	if v, present := top["kind"]; present {
		if s, isString := v.(string); !isString || Kind(s) != expected {
			return nil, failure(expected, "", Violation{Path: "kind", Reason: fmt.Sprintf("expected %q, got %v", expected, v)})
		}
	}

	version, vErr := checkVersion(top, expected)
	if vErr != nil {
		return nil, failure(expected, version, *vErr)
	}

	sch, err := compiledSchema(expected, version)
	if err != nil {
		return nil, err
	}
	result, err := sch.Validate(gojsonschema.NewGoLoader(generic))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	var violations []Violation
	for _, verr := range result.Errors() {
		violations = append(violations, toViolation(verr))
	}
	violations = append(violations, semanticViolations(expected, top)...)
	if len(violations) > 0 {
		sortViolations(violations)
		return nil, failure(expected, version, violations...)
	}

	p := &Pack{Kind: expected, SchemaVersion: version}
	switch expected {
	case KindMapping:
		p.Mapping = &MappingPack{}
		err = json.Unmarshal(raw, p.Mapping)
	case KindBrand:
		p.Brand = &BrandPack{}
		err = json.Unmarshal(raw, p.Brand)
	case KindDelivery:
		p.Delivery = &DeliveryPack{}
		err = json.Unmarshal(raw, p.Delivery)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s pack: %w", expected, err)
	}
	return p, nil
}

// canonicalize turns any JSON-compatible value (YAML and TOML decoders
// included) into encoding/json's generic representation.
func canonicalize(document any) ([]byte, interface{}, error) {
	var raw []byte
	switch d := document.(type) {
	case []byte:
		raw = d
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(document)
		if err != nil {
			return nil, nil, fmt.Errorf("document is not JSON-compatible: %w", err)
		}
		raw = b
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, fmt.Errorf("document is not valid JSON: %w", err)
	}
	return raw, generic, nil
}

func checkVersion(top map[string]interface{}, kind Kind) (string, *Violation) {
	v, ok := top["schema_version"]
	if !ok {
		return "", &Violation{Path: "schema_version", Reason: "required field missing"}
	}
	version, ok := v.(string)
	if !ok {
		return "", &Violation{Path: "schema_version", Reason: fmt.Sprintf("must be a string, got %s", jsonType(v))}
	}
	if !versionPattern.MatchString(version) {
		return version, &Violation{Path: "schema_version", Reason: fmt.Sprintf("malformed schema version %q (expected MAJOR.MINOR.PATCH)", version)}
	}
	supported := SupportedVersions(kind)
	for _, s := range supported {
		if s == version {
			return version, nil
		}
	}
	return version, &Violation{
		Path:   "schema_version",
		Reason: fmt.Sprintf("unsupported schema version %q for %s packs (supported: %s)", version, kind, strings.Join(supported, ", ")),
	}
}

func toViolation(verr gojsonschema.ResultError) Violation {
	path := locator(verr.Field())
	reason := verr.Description()
	switch verr.Type() {
	case "required":
		if prop, ok := verr.Details()["property"].(string); ok {
			path = joinPath(path, prop)
		}
		reason = "required field missing"
	case "additional_property_not_allowed":
		if prop, ok := verr.Details()["property"].(string); ok {
			path = joinPath(path, prop)
		}
		reason = "unknown field"
	}
	return Violation{Path: path, Reason: reason}
}

// locator converts gojsonschema's dotted field ("mappings.3.old_asset") into
// an indexed path ("mappings[3].old_asset").
func locator(field string) string {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return ""
	}
	field = strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
	var b strings.Builder
	for _, seg := range strings.Split(field, ".") {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func indexPath(list string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, i, field)
}

// semanticViolations covers the uniqueness rules JSON Schema cannot express.
func semanticViolations(kind Kind, top map[string]interface{}) []Violation {
	switch kind {
	case KindMapping:
		return duplicates(top, "mappings", "old_asset", false)
	case KindBrand:
		out := duplicates(top, "colors", "name", true)
		return append(out, duplicates(top, "terminology", "term", true)...)
	}
	return nil
}

// duplicates reports one violation per index whose field value is shared with
// another entry of the same list.
func duplicates(top map[string]interface{}, list, field string, foldCase bool) []Violation {
	entries, ok := top[list].([]interface{})
	if !ok {
		return nil
	}
	seen := map[string][]int{}
	var order []string
	for i, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		s, ok := m[field].(string)
		if !ok {
			continue
		}
		key := strings.TrimSpace(s)
		if foldCase {
			key = strings.ToLower(key)
		}
		if key == "" {
			continue
		}
		if _, exists := seen[key]; !exists {
			order = append(order, key)
		}
		seen[key] = append(seen[key], i)
	}

	var out []Violation
	for _, key := range order {
		idx := seen[key]
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			out = append(out, Violation{
				Path:   indexPath(list, i, field),
				Reason: fmt.Sprintf("duplicate %s %q (indices %s)", field, key, joinInts(idx)),
			})
		}
	}
	return out
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// sortViolations orders violations by path, comparing list indices numerically.
func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if c := comparePaths(vs[i].Path, vs[j].Path); c != 0 {
			return c < 0
		}
		return vs[i].Reason < vs[j].Reason
	})
}

func comparePaths(a, b string) int {
	for a != "" && b != "" {
		ca, ra := nextChunk(a)
		cb, rb := nextChunk(b)
		na, errA := strconv.Atoi(ca)
		nb, errB := strconv.Atoi(cb)
		switch {
		case errA == nil && errB == nil && na != nb:
			if na < nb {
				return -1
			}
			return 1
		case ca != cb:
			if ca < cb {
				return -1
			}
			return 1
		}
		a, b = ra, rb
	}
	return len(a) - len(b)
}

// nextChunk splits off the leading run of digits or non-digits.
func nextChunk(s string) (string, string) {
	isDigit := s[0] >= '0' && s[0] <= '9'
	i := 1
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') == isDigit {
		i++
	}
	return s[:i], s[i:]
}
