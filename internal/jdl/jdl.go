// Package jdl reads and writes job descriptions in the ClassAd based JDL
// notation used by the scheduler.
package jdl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ClassAd is a parsed job description. Attribute names are matched
// case-insensitively, as ClassAd evaluation does.
type ClassAd struct {
	exprs map[string]string
	names []string // declaration order, original case
}

// NewClassAd returns an empty ClassAd.
func NewClassAd() *ClassAd {
	return &ClassAd{exprs: make(map[string]string)}
}

// Parse parses a JDL text. The outer brackets are optional.
func Parse(text string) (*ClassAd, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "[") {
		if !strings.HasSuffix(body, "]") {
			return nil, fmt.Errorf("jdl: unterminated [")
		}
		body = body[1 : len(body)-1]
	}

	ad := NewClassAd()
	stmts, err := split(body, ';')
	if err != nil {
		return nil, err
	}
	for i, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		name, expr, ok := strings.Cut(stmt, "=")
		if !ok {
			return nil, fmt.Errorf("jdl: statement %d has no '=': %q", i+1, stmt)
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t\"{}") {
			return nil, fmt.Errorf("jdl: statement %d: invalid attribute name %q", i+1, name)
		}
		ad.Insert(name, strings.TrimSpace(expr))
	}
	return ad, nil
}

// split cuts s at sep outside of string literals and braces.
func split(s string, sep rune) ([]string, error) {
	var (
		out     []string
		depth   int
		inStr   bool
		escaped bool
		start   int
	)
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case inStr && r == '\\':
			escaped = true
		case r == '"':
			inStr = !inStr
		case inStr:
		case r == '{':
			depth++
		case r == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("jdl: unbalanced } at offset %d", i)
			}
		case r == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if inStr {
		return nil, fmt.Errorf("jdl: unterminated string")
	}
	if depth != 0 {
		return nil, fmt.Errorf("jdl: unbalanced {")
	}
	return append(out, s[start:]), nil
}

// Insert sets the raw expression of name.
func (c *ClassAd) Insert(name, expr string) {
	key := strings.ToLower(name)
	if _, ok := c.exprs[key]; !ok {
		c.names = append(c.names, name)
	}
	c.exprs[key] = expr
}

// InsertString sets name to a string literal.
func (c *ClassAd) InsertString(name, value string) {
	c.Insert(name, strconv.Quote(value))
}

// InsertList sets name to a list of string literals.
func (c *ClassAd) InsertList(name string, values []string) {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	c.Insert(name, "{"+strings.Join(quoted, ", ")+"}")
}

// Lookup reports whether name is set.
func (c *ClassAd) Lookup(name string) bool {
	_, ok := c.exprs[strings.ToLower(name)]
	return ok
}

// GetExpression returns the raw expression text of name, or "" when it is
// not set.
func (c *ClassAd) GetExpression(name string) string {
	return c.exprs[strings.ToLower(name)]
}

// GetString returns the value of a string attribute.
func (c *ClassAd) GetString(name string) (string, bool) {
	expr := c.GetExpression(name)
	if expr == "" {
		return "", false
	}
	s, err := strconv.Unquote(expr)
	if err != nil {
		return expr, true
	}
	return s, true
}

// GetList returns the values of a list attribute. A single value is a
// list of one.
func (c *ClassAd) GetList(name string) ([]string, error) {
	expr := strings.TrimSpace(c.GetExpression(name))
	if expr == "" {
		return nil, nil
	}
	if strings.HasPrefix(expr, "{") {
		expr = strings.TrimSuffix(strings.TrimPrefix(expr, "{"), "}")
	}
	items, err := split(expr, ',')
	if err != nil {
		return nil, err
	}
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if s, err := strconv.Unquote(item); err == nil {
			item = s
		}
		out = append(out, item)
	}
	return out, nil
}

// Names returns the attribute names in declaration order.
func (c *ClassAd) Names() []string {
	return append([]string(nil), c.names...)
}

// String renders the ClassAd in JDL notation, one attribute per line.
func (c *ClassAd) String() string {
	var b strings.Builder
	b.WriteString("[\n")
	for _, name := range c.names {
		fmt.Fprintf(&b, "    %s = %s;\n", name, c.exprs[strings.ToLower(name)])
	}
	b.WriteString("]\n")
	return b.String()
}

// AsMap returns the attributes as name to raw expression.
func (c *ClassAd) AsMap() map[string]string {
	out := make(map[string]string, len(c.names))
	for _, n := range c.names {
		out[n] = c.exprs[strings.ToLower(n)]
	}
	return out
}

// sortedNames is used for deterministic output of unordered inputs.
func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
