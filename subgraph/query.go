// Package subgraph talks to GraphQL index services: the delegation subgraphs
// and the cross-chain block finder.
//
// Queries are plain values rendered to GraphQL text, so callers build them
// the same way they would build a JSON document:
//
//	q := subgraph.Query{
//		Entity: "blocks",
//		Args:   subgraph.Args{{"where", subgraph.Args{{"ts", 1700000000}}}},
//		Fields: []string{"network", "number"},
//	}
package subgraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// Arg is one named GraphQL argument or input-object field.
type Arg struct {
	Name  string
	Value interface{}
}

// Args keeps argument order stable so rendered queries are reproducible.
type Args []Arg

// Set returns a copy of the arguments with the named one replaced or
// appended. The receiver is left untouched.
func (a Args) Set(name string, value interface{}) Args {
	out := append(make(Args, 0, len(a)+1), a...)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Arg{Name: name, Value: value})
}

// Without returns a copy of the arguments minus the named one.
func (a Args) Without(name string) Args {
	out := make(Args, 0, len(a))
	for _, arg := range a {
		if arg.Name != name {
			out = append(out, arg)
		}
	}
	return out
}

// Query selects scalar fields of one top-level entity.
type Query struct {
	Entity string
	Args   Args
	Fields []string
}

// String renders the query document.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("query { ")
	b.WriteString(q.Entity)
	if len(q.Args) > 0 {
		b.WriteString(" (")
		writeArgs(&b, q.Args)
		b.WriteString(")")
	}
	b.WriteString(" { ")
	b.WriteString(strings.Join(q.Fields, " "))
	b.WriteString(" } }")
	return b.String()
}

func writeArgs(b *strings.Builder, args Args) {
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.Name)
		b.WriteString(": ")
		writeValue(b, arg.Value)
	}
}

func writeValue(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		quoted, _ := json.Marshal(val)
		b.Write(quoted)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(val, 10))
	case idx.Block:
		b.WriteString(strconv.FormatUint(uint64(val), 10))
	case json.Number:
		b.WriteString(val.String())
	case Args:
		b.WriteString("{")
		writeArgs(b, val)
		b.WriteString("}")
	case []string:
		b.WriteString("[")
		for i, s := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, s)
		}
		b.WriteString("]")
	case []interface{}:
		b.WriteString("[")
		for i, s := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, s)
		}
		b.WriteString("]")
	case fmt.Stringer:
		writeValue(b, val.String())
	default:
		writeValue(b, fmt.Sprint(val))
	}
}
