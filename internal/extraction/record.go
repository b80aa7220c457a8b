package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Value is a coerced field value: string or int64.
type Value = any

// Entry is one field of a Record.
type Entry struct {
	Name  string
	Value Value
}

// Record is an ordered field mapping validated against a Schema.
type Record struct {
	Schema  string
	Entries []Entry
}

// Get returns the value of field name.
func (r Record) Get(name string) (Value, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.Entries) }

// MarshalJSON writes the fields as an object in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonValue converts the record to the generic form the schema validator
// expects. Integers become json.Number so large IDs keep their precision.
func (r Record) jsonValue() map[string]any {
	out := make(map[string]any, len(r.Entries))
	for _, e := range r.Entries {
		switch v := e.Value.(type) {
		case int64:
			out[e.Name] = json.Number(strconv.FormatInt(v, 10))
		default:
			out[e.Name] = v
		}
	}
	return out
}

// Composite keys used when a CompositeRecord is serialised.
const (
	FrontKey = "Front Side Information"
	BackKey  = "Back Side Information"
)

// CompositeRecord joins the front and back extractions of a national ID.
type CompositeRecord struct {
	Front Record
	Back  Record
}

// MarshalJSON writes {"Front Side Information": ..., "Back Side Information": ...}.
func (c CompositeRecord) MarshalJSON() ([]byte, error) {
	front, err := c.Front.MarshalJSON()
	if err != nil {
		return nil, err
	}
	back, err := c.Back.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"` + FrontKey + `":`)
	buf.Write(front)
	buf.WriteString(`,"` + BackKey + `":`)
	buf.Write(back)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is either a Record or a CompositeRecord.
type Result interface {
	json.Marshaler
	// Flatten lists the fields to persist in column order. For a composite
	// the front fields come first; a back field whose name the front already
	// supplied is dropped.
	Flatten() []Entry
	result()
}

func (r Record) Flatten() []Entry {
	return append([]Entry(nil), r.Entries...)
}

func (c CompositeRecord) Flatten() []Entry {
	out := make([]Entry, 0, c.Front.Len()+c.Back.Len())
	seen := make(map[string]struct{}, c.Front.Len())
	for _, e := range c.Front.Entries {
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	for _, e := range c.Back.Entries {
		if _, dup := seen[e.Name]; dup {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (Record) result()          {}
func (CompositeRecord) result() {}
