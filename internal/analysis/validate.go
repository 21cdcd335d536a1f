package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// ViolationError lists every place a response departs from its schema.
type ViolationError struct {
	Violations []string
}

func (e *ViolationError) Error() string {
	return "response does not match schema: " + strings.Join(e.Violations, "; ")
}

// decodeStrict parses raw model text against schema and unmarshals it into out.
// Decoding errors are returned as *json.SyntaxError or similar; schema mismatches
// as *ViolationError.
func decodeStrict(raw string, schema *genai.Schema, out any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: trailing data after top-level value")
	}

	var violations []string
	doc = validateNode(schema, doc, "$", &violations)
	if len(violations) > 0 {
		return &ViolationError{Violations: violations}
	}

	// Re-encode the validated tree so canonicalized integers reach out.
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("failed to re-encode response: %w", err)
	}
	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ValidateAgainst walks a decoded JSON document (as produced by encoding/json
// with UseNumber) and reports violations of schema: missing required
// properties, wrong types, values outside Enum, and numbers outside
// Minimum/Maximum. MaxItems is not enforced here; over-long arrays are
// truncated after decoding.
func ValidateAgainst(schema *genai.Schema, doc any) []string {
	var violations []string
	validateNode(schema, doc, "$", &violations)
	return violations
}

// validateNode checks value against schema and returns it with whole-number
// integers rewritten canonically, so 95.0 or 1e2 decode into Go ints.
func validateNode(schema *genai.Schema, value any, path string, out *[]string) any {
	if schema == nil {
		return value
	}
	if value == nil {
		if schema.Nullable == nil || !*schema.Nullable {
			*out = append(*out, fmt.Sprintf("%s: must not be null", path))
		}
		return value
	}

	switch schema.Type {
	case genai.TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected object", path))
			return value
		}
		for _, name := range schema.Required {
			if _, present := obj[name]; !present {
				*out = append(*out, fmt.Sprintf("%s.%s: required property missing", path, name))
			}
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if v, present := obj[name]; present {
				obj[name] = validateNode(schema.Properties[name], v, path+"."+name, out)
			}
		}
		return obj

	case genai.TypeArray:
		arr, ok := value.([]any)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected array", path))
			return value
		}
		for i, item := range arr {
			arr[i] = validateNode(schema.Items, item, fmt.Sprintf("%s[%d]", path, i), out)
		}
		return arr

	case genai.TypeString:
		s, ok := value.(string)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected string", path))
			return value
		}
		if len(schema.Enum) > 0 && !contains(schema.Enum, s) {
			*out = append(*out, fmt.Sprintf("%s: %q is not one of %s", path, s, strings.Join(schema.Enum, ", ")))
		}
		return s

	case genai.TypeInteger, genai.TypeNumber:
		n, ok := value.(json.Number)
		if !ok {
			*out = append(*out, fmt.Sprintf("%s: expected number", path))
			return value
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			*out = append(*out, fmt.Sprintf("%s: invalid number %s", path, n))
			return value
		}
		if schema.Minimum != nil && f < *schema.Minimum {
			*out = append(*out, fmt.Sprintf("%s: %s is below minimum %g", path, n, *schema.Minimum))
		}
		if schema.Maximum != nil && f > *schema.Maximum {
			*out = append(*out, fmt.Sprintf("%s: %s is above maximum %g", path, n, *schema.Maximum))
		}
		if schema.Type == genai.TypeInteger {
			if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
				*out = append(*out, fmt.Sprintf("%s: expected integer, got %s", path, n))
				return value
			}
			return json.Number(strconv.FormatInt(int64(f), 10))
		}
		return n

	case genai.TypeBoolean:
		if _, ok := value.(bool); !ok {
			*out = append(*out, fmt.Sprintf("%s: expected boolean", path))
		}
	}
	return value
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
