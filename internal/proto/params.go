package proto

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrQueryEncoding = errors.New("malformed query encoding")

// A single parameter value. Null marks a name which appeared without "=".
type ParamValue struct {
	Value string
	Null  bool
}

func (v ParamValue) String() string {
	if v.Null {
		return "<null>"
	}
	return v.Value
}

// An ordered multimap of query parameters. Names keep the order in which they
// were first set; values keep insertion order. The zero value is an empty list
// ready for use.
type ParameterList struct {
	names  []string
	values map[string][]ParamValue
}

// Parse a query string of the form "a=1&b&c=2". Fields are split on "&", each
// field is split at its first "=" and both halves are URL-decoded. A field
// without "=" records a Null value for its name. If any field fails to decode
// the whole list is discarded: the empty list is returned together with an
// error wrapping ErrQueryEncoding.
func ParseQuery(s string) (ParameterList, error) {
	pl := ParameterList{}
	if s == "" {
		return pl, nil
	}

	for _, field := range strings.Split(s, "&") {
		if field == "" {
			continue
		}

		rawName, rawValue, hasValue := strings.Cut(field, "=")

		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return ParameterList{}, fmt.Errorf("%w: %q: %v", ErrQueryEncoding, field, err)
		}

		if !hasValue {
			pl.SetNull(name)
			continue
		}

		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return ParameterList{}, fmt.Errorf("%w: %q: %v", ErrQueryEncoding, field, err)
		}
		pl.Set(name, value)
	}

	return pl, nil
}

func (pl *ParameterList) add(name string, v ParamValue) {
	if pl.values == nil {
		pl.values = map[string][]ParamValue{}
	}
	if _, ok := pl.values[name]; !ok {
		pl.names = append(pl.names, name)
	}
	pl.values[name] = append(pl.values[name], v)
}

// Append value to the values of name.
func (pl *ParameterList) Set(name, value string) {
	pl.add(name, ParamValue{Value: value})
}

// Append a Null value to the values of name.
func (pl *ParameterList) SetNull(name string) {
	pl.add(name, ParamValue{Null: true})
}

// The first value recorded for name.
func (pl ParameterList) First(name string) (ParamValue, bool) {
	return pl.At(name, 0)
}

// The i-th value recorded for name.
func (pl ParameterList) At(name string, i int) (ParamValue, bool) {
	vs := pl.values[name]
	if i < 0 || i >= len(vs) {
		return ParamValue{}, false
	}
	return vs[i], true
}

// The first non-null value for name as a plain string; "" if there is none.
func (pl ParameterList) Get(name string) string {
	v, ok := pl.First(name)
	if !ok || v.Null {
		return ""
	}
	return v.Value
}

// A copy of all values recorded for name, or nil if name is absent.
func (pl ParameterList) All(name string) []ParamValue {
	vs, ok := pl.values[name]
	if !ok {
		return nil
	}
	return append([]ParamValue{}, vs...)
}

func (pl ParameterList) IsSet(name string) bool {
	_, ok := pl.values[name]
	return ok
}

// Remove the first occurrence of value from name. Reports whether anything
// was removed. A name left with no values is dropped.
func (pl *ParameterList) Remove(name, value string) bool {
	vs := pl.values[name]
	for i, v := range vs {
		if !v.Null && v.Value == value {
			vs = append(vs[:i:i], vs[i+1:]...)
			if len(vs) == 0 {
				pl.RemoveAll(name)
			} else {
				pl.values[name] = vs
			}
			return true
		}
	}
	return false
}

// Drop name and all of its values.
func (pl *ParameterList) RemoveAll(name string) {
	if _, ok := pl.values[name]; !ok {
		return
	}
	delete(pl.values, name)
	for i, n := range pl.names {
		if n == name {
			pl.names = append(pl.names[:i:i], pl.names[i+1:]...)
			break
		}
	}
}

// Names in first-set order.
func (pl ParameterList) Keys() []string {
	return append([]string(nil), pl.names...)
}

// The number of distinct names.
func (pl ParameterList) Len() int {
	return len(pl.names)
}

// A deep copy of the list.
func (pl ParameterList) Clone() ParameterList {
	c := ParameterList{}
	for _, n := range pl.names {
		for _, v := range pl.values[n] {
			c.add(n, v)
		}
	}
	return c
}

// Serialise the list as "name=value&name=value". Null values render as the
// bare name. Names and values are query-escaped so that the result parses back
// to an equivalent list.
func (pl ParameterList) String() string {
	var sb strings.Builder
	for _, n := range pl.names {
		for _, v := range pl.values[n] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(n))
			if !v.Null {
				sb.WriteByte('=')
				sb.WriteString(url.QueryEscape(v.Value))
			}
		}
	}
	return sb.String()
}
