package filter

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Op is a leaf comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// MetadataPrefix marks custom metadata fields.
const MetadataPrefix = "metadata."

// Node is one filter node. Exactly one of All, Any, Not or Field is set.
type Node struct {
	All   []Node `json:"all,omitempty" msgpack:"all,omitempty"`
	Any   []Node `json:"any,omitempty" msgpack:"any,omitempty"`
	Not   *Node  `json:"not,omitempty" msgpack:"not,omitempty"`
	Field string `json:"field,omitempty" msgpack:"field,omitempty"`
	Op    Op     `json:"op,omitempty" msgpack:"op,omitempty"`
	Value any    `json:"value,omitempty" msgpack:"value,omitempty"`
}

// Eq returns a leaf node.
func Eq(field string, value any) Node { return Node{Field: field, Op: OpEq, Value: value} }

// In returns a leaf node.
func In(field string, values ...any) Node { return Node{Field: field, Op: OpIn, Value: values} }

// Leaf returns a leaf node with an arbitrary operator.
func Leaf(field string, op Op, value any) Node { return Node{Field: field, Op: op, Value: value} }

// And returns a node matching when all children match.
func And(nodes ...Node) Node { return Node{All: nodes} }

// Or returns a node matching when any child matches.
func Or(nodes ...Node) Node { return Node{Any: nodes} }

// Negate returns a node matching when n does not.
func Negate(n Node) Node { return Node{Not: &n} }

// fieldKind is the value domain of a system field.
type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindTime
)

var systemFields = map[string]fieldKind{
	"asset_id":    kindString,
	"asset_type":  kindString,
	"source_type": kindString,
	"duration_ms": kindNumber,
	"start_ms":    kindNumber,
	"end_ms":      kindNumber,
	"created_at":  kindTime,
}

// SystemFields returns the filterable system field names, sorted.
func SystemFields() []string {
	out := make([]string, 0, len(systemFields))
	for f := range systemFields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// AllowlistLookup resolves custom metadata constraints to asset ids.
type AllowlistLookup interface {
	// AssetsFor returns the ids of assets whose metadata key equals any of values.
	AssetsFor(ctx context.Context, key string, values []string) ([]string, error)
}

// Record exposes the system fields of one row.
type Record interface {
	Get(field string) (any, bool)
}

// Program is a compiled filter. The zero value and nil match everything.
type Program struct {
	root *compiled
}

type compiled struct {
	all   []*compiled
	any   []*compiled
	not   *compiled
	field string
	kind  fieldKind
	op    Op
	value any
	set   map[string]bool
	// hasAll/hasAny distinguish an empty list from an absent one.
	hasAll bool
	hasAny bool
}

// Compile validates n and resolves metadata leaves through lookup. A nil n yields a
// nil program. lookup may be nil when the filter has no metadata leaves.
func Compile(ctx context.Context, n *Node, lookup AllowlistLookup) (*Program, error) {
	if n == nil {
		return nil, nil
	}
	c, err := compileNode(ctx, *n, "$", lookup)
	if err != nil {
		return nil, err
	}
	return &Program{root: c}, nil
}

func compileNode(ctx context.Context, n Node, path string, lookup AllowlistLookup) (*compiled, error) {
	set := 0
	if n.All != nil {
		set++
	}
	if n.Any != nil {
		set++
	}
	if n.Not != nil {
		set++
	}
	if n.Field != "" {
		set++
	}
	if set != 1 {
		return nil, &Error{Path: path, Message: "node must set exactly one of all, any, not, field"}
	}

	switch {
	case n.All != nil:
		c := &compiled{hasAll: true}
		for i, child := range n.All {
			cc, err := compileNode(ctx, child, fmt.Sprintf("%s.all[%d]", path, i), lookup)
			if err != nil {
				return nil, err
			}
			c.all = append(c.all, cc)
		}
		return c, nil
	case n.Any != nil:
		c := &compiled{hasAny: true}
		for i, child := range n.Any {
			cc, err := compileNode(ctx, child, fmt.Sprintf("%s.any[%d]", path, i), lookup)
			if err != nil {
				return nil, err
			}
			c.any = append(c.any, cc)
		}
		return c, nil
	case n.Not != nil:
		cc, err := compileNode(ctx, *n.Not, path+".not", lookup)
		if err != nil {
			return nil, err
		}
		return &compiled{not: cc}, nil
	}

	if strings.HasPrefix(n.Field, MetadataPrefix) {
		return compileMetadata(ctx, n, path, lookup)
	}
	kind, ok := systemFields[n.Field]
	if !ok {
		return nil, &Error{Path: path, Field: n.Field, Message: "unknown field"}
	}
	return compileLeaf(n, kind, path)
}

func compileLeaf(n Node, kind fieldKind, path string) (*compiled, error) {
	c := &compiled{field: n.Field, kind: kind, op: n.Op}
	bad := func(msg string) error { return &Error{Path: path, Field: n.Field, Message: msg} }

	switch n.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		v, ok := scalar(n.Value, kind)
		if !ok {
			return nil, bad(fmt.Sprintf("op %s needs a %s value", n.Op, kindName(kind)))
		}
		if kind == kindString && n.Op != OpEq && n.Op != OpNe {
			return nil, bad(fmt.Sprintf("op %s is not supported on string fields", n.Op))
		}
		c.value = v
	case OpIn:
		list, ok := toList(n.Value)
		if !ok || len(list) == 0 {
			return nil, bad("op in needs a non-empty list")
		}
		c.set = make(map[string]bool, len(list))
		for _, e := range list {
			v, ok := scalar(e, kind)
			if !ok {
				return nil, bad(fmt.Sprintf("op in needs %s elements", kindName(kind)))
			}
			c.set[setKey(v)] = true
		}
	case OpContains:
		s, ok := n.Value.(string)
		if !ok || kind != kindString {
			return nil, bad("op contains needs a string field and value")
		}
		c.value = s
	default:
		return nil, bad(fmt.Sprintf("unknown op %q", n.Op))
	}
	return c, nil
}

func compileMetadata(ctx context.Context, n Node, path string, lookup AllowlistLookup) (*compiled, error) {
	key := strings.TrimPrefix(n.Field, MetadataPrefix)
	bad := func(msg string) error { return &Error{Path: path, Field: n.Field, Message: msg} }
	if key == "" {
		return nil, bad("empty metadata key")
	}
	if lookup == nil {
		return nil, bad("metadata filters are not configured")
	}

	var values []string
	switch n.Op {
	case OpEq:
		s, ok := stringish(n.Value)
		if !ok {
			return nil, bad("metadata eq needs a scalar value")
		}
		values = []string{s}
	case OpIn:
		list, ok := toList(n.Value)
		if !ok || len(list) == 0 {
			return nil, bad("metadata in needs a non-empty list")
		}
		for _, e := range list {
			s, ok := stringish(e)
			if !ok {
				return nil, bad("metadata in needs scalar elements")
			}
			values = append(values, s)
		}
	default:
		return nil, bad(fmt.Sprintf("op %s is not supported on metadata fields", n.Op))
	}

	assets, err := lookup.AssetsFor(ctx, key, values)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", n.Field, err)
	}
	c := &compiled{field: "asset_id", kind: kindString, op: OpIn, set: make(map[string]bool, len(assets))}
	for _, a := range assets {
		c.set[a] = true
	}
	return c, nil
}

func kindName(k fieldKind) string {
	switch k {
	case kindNumber:
		return "numeric"
	case kindTime:
		return "time"
	default:
		return "string"
	}
}

// Match reports whether rec passes p.
func (p *Program) Match(rec Record) bool {
	if p == nil || p.root == nil {
		return true
	}
	return p.root.match(rec)
}

// Empty reports whether p imposes no restriction.
func (p *Program) Empty() bool {
	return p == nil || p.root == nil
}

func (c *compiled) match(rec Record) bool {
	switch {
	case c.hasAll:
		for _, cc := range c.all {
			if !cc.match(rec) {
				return false
			}
		}
		return true
	case c.hasAny:
		for _, cc := range c.any {
			if cc.match(rec) {
				return true
			}
		}
		return false
	case c.not != nil:
		return !c.not.match(rec)
	}

	raw, ok := rec.Get(c.field)
	if !ok {
		return false
	}
	v, ok := scalar(raw, c.kind)
	if !ok {
		return false
	}

	switch c.op {
	case OpIn:
		return c.set[setKey(v)]
	case OpContains:
		s, _ := v.(string)
		return strings.Contains(s, c.value.(string))
	}

	cmp, ok := compare(v, c.value)
	if !ok {
		return false
	}
	switch c.op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}
