package document

import (
	"bytes"

	"aiaforge/internal/util/jsonutil"
)

// Field is one key of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is a JSON object that keeps its keys in insertion order. The
// importer does not care about key order, but byte-identical output does.
type Record struct {
	fields []Field
}

// Set stores v under key, keeping the original position of an existing key.
func (r *Record) Set(key string, v any) {
	for i := range r.fields {
		if r.fields[i].Key == key {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	for _, f := range r.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Key
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := jsonutil.MarshalCompact(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := jsonutil.MarshalCompact(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
