// Package allowlist evaluates client-originated CDP messages against an
// ordered list of predicates (spec §4.6, GLOSSARY "Allow-list predicate").
//
// The original Python proxy built predicates as Python source strings and
// ran them through eval(expr, {}, dict(msg=msg)) — explicitly flagged in
// spec §9 as unsafe to port literally, and no expression-evaluation library
// (expr-lang/expr, Knetic/govaluate, ...) appears anywhere in the retrieved
// example corpus. This package instead compiles a small JSON matcher DSL,
// the alternative spec §9 names outright: "a compiled predicate built from
// a small JSON matcher DSL: field-equality, field-presence, conjunction,
// disjunction."
package allowlist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate is a boolean test over a decoded client CDP message.
type Predicate func(msg map[string]any) bool

// List is an ordered set of predicates; a message is allowed if at least one
// predicate matches (spec §3, §4.6).
type List struct {
	predicates []Predicate
}

// New builds a List from the given predicates, evaluated in order.
func New(predicates ...Predicate) *List {
	return &List{predicates: predicates}
}

// Append adds predicates to the end of the list, preserving evaluation order.
func (l *List) Append(p ...Predicate) {
	l.predicates = append(l.predicates, p...)
}

// Permits decodes raw as a JSON object and reports whether any predicate
// matches it. Evaluation short-circuits on the first match (spec §4.6).
// A message that fails to decode as a JSON object is never permitted.
func (l *List) Permits(raw []byte) bool {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false
	}
	for _, p := range l.predicates {
		if p(msg) {
			return true
		}
	}
	return false
}

// MethodEquals builds the "literal method-name equality" predicate form of
// spec §3: it holds iff the message's method field equals name. This is the
// predicate --remote-debugging-allow METHOD produces.
func MethodEquals(name string) Predicate {
	return func(msg map[string]any) bool {
		m, _ := msg["method"].(string)
		return m == name
	}
}

// --- JSON matcher DSL (spec §9 design note) ---
//
// A matcher expression is one JSON object with exactly one of:
//   {"field": "a.b.c", "eq": <value>}   field-equality (dotted path into the message)
//   {"field": "a.b.c", "has": true}     field-presence
//   {"method": "Page.reload"}           method-name equality, DSL form
//   {"all": [expr, ...]}                conjunction
//   {"any": [expr, ...]}                disjunction

// expr mirrors the DSL's JSON shape for unmarshaling; exactly one branch is
// expected to be populated per node.
type expr struct {
	Method *string           `json:"method"`
	Field  *string           `json:"field"`
	Eq     json.RawMessage   `json:"eq"`
	Has    *bool             `json:"has"`
	All    []json.RawMessage `json:"all"`
	Any    []json.RawMessage `json:"any"`
}

// CompileExpression parses a JSON matcher DSL document (spec §4.6, §9) and
// returns the Predicate it describes. This is the --remote-debugging-allow-expression
// value; the legacy Python eval() expression form is no longer accepted.
func CompileExpression(doc []byte) (Predicate, error) {
	return compileNode(doc)
}

func compileNode(doc []byte) (Predicate, error) {
	var e expr
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("allowlist: invalid matcher expression: %w", err)
	}
	switch {
	case e.Method != nil:
		return MethodEquals(*e.Method), nil
	case e.Field != nil && e.Eq != nil:
		return fieldEquals(*e.Field, e.Eq)
	case e.Field != nil && e.Has != nil:
		path := *e.Field
		want := *e.Has
		return func(msg map[string]any) bool { return fieldPresent(msg, path) == want }, nil
	case len(e.All) > 0:
		return compileConjunction(e.All)
	case len(e.Any) > 0:
		return compileDisjunction(e.Any)
	default:
		return nil, fmt.Errorf("allowlist: matcher expression has no recognized form: %s", doc)
	}
}

func fieldEquals(path string, wantRaw json.RawMessage) (Predicate, error) {
	var want any
	if err := json.Unmarshal(wantRaw, &want); err != nil {
		return nil, fmt.Errorf("allowlist: invalid \"eq\" value: %w", err)
	}
	return func(msg map[string]any) bool {
		got, ok := lookupField(msg, path)
		return ok && equalJSON(got, want)
	}, nil
}

func compileConjunction(nodes []json.RawMessage) (Predicate, error) {
	preds, err := compileAll(nodes)
	if err != nil {
		return nil, err
	}
	return func(msg map[string]any) bool {
		for _, p := range preds {
			if !p(msg) {
				return false
			}
		}
		return true
	}, nil
}

func compileDisjunction(nodes []json.RawMessage) (Predicate, error) {
	preds, err := compileAll(nodes)
	if err != nil {
		return nil, err
	}
	return func(msg map[string]any) bool {
		for _, p := range preds {
			if p(msg) {
				return true
			}
		}
		return false
	}, nil
}

func compileAll(nodes []json.RawMessage) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(nodes))
	for _, n := range nodes {
		p, err := compileNode(n)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// lookupField walks a dotted path ("params.targetId") into msg, returning
// (value, true) if every segment along the way resolves.
func lookupField(msg map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = msg
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func fieldPresent(msg map[string]any, path string) bool {
	_, ok := lookupField(msg, path)
	return ok
}

// equalJSON compares two values produced by encoding/json's default
// decoding (so numbers are float64, and nested structures are
// map[string]any / []any) via their canonical JSON encoding, which is
// simpler and just as correct as a recursive type switch here.
func equalJSON(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
