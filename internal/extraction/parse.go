package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parse decodes a raw gateway answer and validates it against s. Missing or
// null fields, values that cannot be coerced and integers outside their
// bounds (negative amounts, national IDs that are not 14 digits) fail with a
// SchemaValidationError naming the field; text that is not a JSON object
// fails with a MalformedResponseError. Extra fields are ignored.
func Parse(s Schema, raw []byte) (Record, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Record{}, &MalformedResponseError{Schema: s.Name, Err: err}
	}

	rec := Record{Schema: s.Name, Entries: make([]Entry, 0, len(s.Fields))}
	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			return Record{}, &SchemaValidationError{Schema: s.Name, Field: f.Name, Reason: "is missing"}
		}
		coerced, err := coerce(f.Type, v)
		if err != nil {
			return Record{}, &SchemaValidationError{Schema: s.Name, Field: f.Name, Reason: err.Error()}
		}
		rec.Entries = append(rec.Entries, Entry{Name: f.Name, Value: coerced})
	}

	if err := checkContract(s, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	body := stripFence(bytes.TrimSpace(raw))
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return obj, nil
}

// stripFence unwraps ```json ... ``` blocks some models emit even in JSON mode.
func stripFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	}
	b = bytes.TrimSpace(b)
	return bytes.TrimSpace(bytes.TrimSuffix(b, []byte("```")))
}

func coerce(t FieldType, v any) (Value, error) {
	switch t {
	case Integer:
		return coerceInteger(v)
	case String, Date:
		return coerceString(v)
	default:
		return nil, fmt.Errorf("has unsupported type %d", t)
	}
}

func coerceInteger(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("is not an integer: %s", x.String())
		}
		return int64(f), nil
	case string:
		clean := strings.NewReplacer(",", "", " ", "", "_", "").Replace(strings.TrimSpace(x))
		i, err := strconv.ParseInt(clean, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("is not an integer: %q", x)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("is not an integer: %T", v)
	}
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", errors.New("is empty")
		}
		return s, nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("is not a string: %T", v)
	}
}

var (
	compiledMu sync.Mutex
	compiled   = map[string]*jsonschema.Schema{}
)

// checkContract validates the coerced record against the contract schema,
// which bounds values the structured output modes leave unchecked.
func checkContract(s Schema, rec Record) error {
	sch, err := compile(s)
	if err != nil {
		return err
	}
	if err := sch.Validate(rec.jsonValue()); err != nil {
		field := s.Name
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			if leaf := deepest(ve); leaf.InstanceLocation != "" {
				field = strings.TrimPrefix(leaf.InstanceLocation, "/")
			}
		}
		return &SchemaValidationError{Schema: s.Name, Field: field, Reason: "does not match schema: " + err.Error()}
	}
	return nil
}

func compile(s Schema) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if sch, ok := compiled[s.Name]; ok {
		return sch, nil
	}
	doc, err := json.Marshal(s.contractSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", s.Name, err)
	}
	url := s.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", s.Name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", s.Name, err)
	}
	compiled[s.Name] = sch
	return sch, nil
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
