// Package domain holds the value types every metadata lookup returns.
package domain

import "strings"

// Row is one fetched result row: one string per selected column, in column
// order. SQL NULL is rendered as "".
type Row []string

// Empty reports whether the row carries no columns. An empty row is the
// exhaustion marker of a cursor.
func (r Row) Empty() bool { return len(r) == 0 }

// At returns column i, or "" when the row is shorter than i+1.
func (r Row) At(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// AttributeMap maps attribute names to values. "" represents SQL NULL; an
// empty map means "not found".
type AttributeMap map[string]string

// Found reports whether the lookup produced a row.
func (m AttributeMap) Found() bool { return len(m) > 0 }

// Clone returns a copy that can be modified without touching cached state.
func (m AttributeMap) Clone() AttributeMap {
	if m == nil {
		return AttributeMap{}
	}
	out := make(AttributeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FromRow assigns row columns to attribute names in order. Columns beyond the
// name list are ignored; missing columns map to "".
func FromRow(row Row, names ...string) AttributeMap {
	m := make(AttributeMap, len(names))
	for i, name := range names {
		m[name] = row.At(i)
	}
	return m
}

// AttributeList is the result of a lookup that returns several attribute sets.
type AttributeList []AttributeMap

// Clone copies every attribute set of l.
func (l AttributeList) Clone() AttributeList {
	if l == nil {
		return nil
	}
	out := make(AttributeList, len(l))
	for i, m := range l {
		out[i] = m.Clone()
	}
	return out
}

// StationList maps a station identifier to its attributes.
type StationList map[int64]AttributeMap

// Clone copies every station of s.
func (s StationList) Clone() StationList {
	if s == nil {
		return nil
	}
	out := make(StationList, len(s))
	for id, m := range s {
		out[id] = m.Clone()
	}
	return out
}

// TrimBraces strips array braces from a text-rendered SQL array value.
func TrimBraces(s string) string {
	return strings.Trim(s, "{}")
}
