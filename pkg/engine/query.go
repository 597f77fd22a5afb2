package engine

import (
	"fmt"
	"strings"
)

type QueryKind string

const (
	QueryCSS     QueryKind = "css"
	QueryHasText QueryKind = "has-text"
	QueryText    QueryKind = "text"
	QueryRole    QueryKind = "role"
)

// Query locates an element on a page independent of the driver in use.
type Query struct {
	Kind QueryKind `json:"kind" yaml:"kind"`

	// CSS selector for QueryCSS and QueryHasText
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Text to match for QueryText and QueryHasText
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// ARIA role and accessible name for QueryRole
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func CSS(selector string) Query {
	return Query{Kind: QueryCSS, Selector: selector}
}

// HasText matches elements selected by css that contain the given text.
func HasText(selector, text string) Query {
	return Query{Kind: QueryHasText, Selector: selector, Text: text}
}

func Text(text string) Query {
	return Query{Kind: QueryText, Text: text}
}

func Role(role, name string) Query {
	return Query{Kind: QueryRole, Role: role, Name: name}
}

// String renders the query in playwright selector syntax.
func (q Query) String() string {
	switch q.Kind {
	case QueryCSS:
		return q.Selector
	case QueryHasText:
		return fmt.Sprintf("%s:has-text(%s)", q.Selector, quote(q.Text))
	case QueryText:
		return "text=" + q.Text
	case QueryRole:
		if q.Name == "" {
			return "role=" + q.Role
		}
		return fmt.Sprintf("role=%s[name=%q]", q.Role, q.Name)
	default:
		return fmt.Sprintf("<invalid query kind %q>", string(q.Kind))
	}
}

// WithKind fills a missing kind from the fields that are set: selector with text is has-text,
// a bare selector is css, then role, then text.
func (q Query) WithKind() Query {
	if q.Kind != "" {
		return q
	}

	switch {
	case q.Selector != "" && q.Text != "":
		q.Kind = QueryHasText
	case q.Selector != "":
		q.Kind = QueryCSS
	case q.Role != "":
		q.Kind = QueryRole
	case q.Text != "":
		q.Kind = QueryText
	}

	return q
}

func (q Query) Validate() error {
	switch q.Kind {
	case QueryCSS:
		if q.Selector == "" {
			return fmt.Errorf("css query: empty selector")
		}
	case QueryHasText:
		if q.Selector == "" || q.Text == "" {
			return fmt.Errorf("has-text query: selector and text are required")
		}
	case QueryText:
		if q.Text == "" {
			return fmt.Errorf("text query: empty text")
		}
	case QueryRole:
		if q.Role == "" {
			return fmt.Errorf("role query: empty role")
		}
	default:
		return fmt.Errorf("unsupported query kind: %q", string(q.Kind))
	}

	return nil
}

// XPath renders the query as an XPath expression for drivers without playwright's selector engines.
// Text matching is a whitespace-normalised substring match, role matching covers native elements and explicit role attributes.
func (q Query) XPath() string {
	switch q.Kind {
	case QueryCSS:
		return ""
	case QueryHasText:
		return fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", cssTag(q.Selector), xpathLiteral(q.Text))
	case QueryText:
		return fmt.Sprintf("//*[text()[contains(normalize-space(.), %s)]]", xpathLiteral(q.Text))
	case QueryRole:
		tags := roleTags[q.Role]
		conds := make([]string, 0, len(tags)+1)
		conds = append(conds, fmt.Sprintf("@role=%s", xpathLiteral(q.Role)))
		for _, tag := range tags {
			conds = append(conds, "self::"+tag)
		}

		expr := fmt.Sprintf("//*[%s]", strings.Join(conds, " or "))
		if q.Name != "" {
			lit := xpathLiteral(q.Name)
			expr = fmt.Sprintf("//*[(%s) and (normalize-space(.)=%s or @aria-label=%s or @value=%s)]", strings.Join(conds, " or "), lit, lit, lit)
		}
		return expr
	default:
		return ""
	}
}

var roleTags = map[string][]string{
	"button":   {"button"},
	"link":     {"a"},
	"checkbox": {},
	"heading":  {"h1", "h2", "h3", "h4", "h5", "h6"},
}

func cssTag(selector string) string {
	tag := strings.TrimSpace(selector)
	if tag == "" || strings.ContainsAny(tag, ".#[: >") {
		return "*"
	}
	return tag
}

func quote(s string) string {
	if strings.Contains(s, "'") {
		return fmt.Sprintf("%q", s)
	}
	return "'" + s + "'"
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
