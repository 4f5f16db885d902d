package capi

import "unicode/utf16"

// String is the wide-string boundary representation: UTF-16 code units plus
// an explicit length. It is never NUL-terminated and may contain embedded
// zero code units.
type String struct {
	Data   []uint16
	Length int
}

// NewString converts a Go string to its boundary representation. The
// conversion is a lossless round-trip for all representable code points;
// code points above the BMP become surrogate pairs.
func NewString(s string) *String {
	units := utf16.Encode([]rune(s))
	return &String{Data: units, Length: len(units)}
}

// NewStringFromUnits wraps raw UTF-16 code units received from the
// boundary. The slice is aliased, not copied.
func NewStringFromUnits(units []uint16) *String {
	return &String{Data: units, Length: len(units)}
}

// Get converts the boundary representation back to a Go string. A nil
// receiver maps to "", matching the nullable-pointer convention. Unpaired
// surrogates decode to U+FFFD rather than failing; the boundary has no
// channel for rich conversion errors.
func (s *String) Get() string {
	if s == nil || s.Length == 0 {
		return ""
	}
	return string(utf16.Decode(s.Data[:s.Length]))
}

// StringList is an ordered list of boundary strings, used by calls that
// hand back multiple values at once.
type StringList struct {
	items []*String
}

// NewStringList converts Go strings to a boundary list.
func NewStringList(values ...string) *StringList {
	l := &StringList{items: make([]*String, 0, len(values))}
	for _, v := range values {
		l.items = append(l.items, NewString(v))
	}
	return l
}

// Append adds one string to the list.
func (l *StringList) Append(s *String) {
	l.items = append(l.items, s)
}

// Len returns the number of entries. A nil list is empty.
func (l *StringList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns the entry at index i, or nil when out of range.
func (l *StringList) At(i int) *String {
	if l == nil || i < 0 || i >= len(l.items) {
		return nil
	}
	return l.items[i]
}

// Get converts every entry back to a Go string. A nil list maps to nil.
func (l *StringList) Get() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.items))
	for _, s := range l.items {
		out = append(out, s.Get())
	}
	return out
}
