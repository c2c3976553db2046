package mds

import (
	"fmt"
	"reflect"
	"strings"
)

// Param is one named command parameter. A nil Value, or a nil pointer, map or slice,
// marks the parameter absent and it is left out of the command line entirely.
type Param struct {
	Name  string
	Value any
}

// P builds a parameter.
func P(name string, value any) Param {
	return Param{Name: name, Value: value}
}

// Opt builds a string parameter that is absent when value is empty.
func Opt(name, value string) Param {
	if value == "" {
		return Param{Name: name}
	}
	return Param{Name: name, Value: value}
}

// BuildCommand renders name followed by the present parameters as space separated
// name:value tokens, in the order given. Values are not quoted; use Quote for values
// that may contain spaces or quotes.
func BuildCommand(name string, params ...Param) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range params {
		if isAbsent(p.Value) {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(stringify(p.Value))
	}
	return b.String()
}

// Quote wraps a value in double quotes, escaping embedded quotes and backslashes, so
// multi-word values such as scripts and messages stay a single parameter.
func Quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func stringify(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface())
}

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes every byte of command except the RFC 3986 unreserved set, so the
// whole command travels as one opaque payload. url.PathUnescape reverses it exactly.
func Encode(command string) string {
	var b strings.Builder
	b.Grow(len(command) * 3)
	for i := 0; i < len(command); i++ {
		c := command[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// truncate shortens a response body for inclusion in an error message.
func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n])
}
