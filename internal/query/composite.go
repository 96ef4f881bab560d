package query

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Composite is an AND or OR group of predicates built incrementally. A
// single child renders without parentheses, an empty group renders nothing.
type Composite struct {
	mode  JoinMode
	parts []sq.Sqlizer
}

func NewComposite(mode JoinMode) *Composite {
	if mode != Or {
		mode = And
	}
	return &Composite{mode: mode}
}

func (c *Composite) Mode() JoinMode { return c.mode }

func (c *Composite) Len() int { return len(c.parts) }

func (c *Composite) Add(p sq.Sqlizer) {
	if nested, ok := p.(*Composite); ok && nested.Len() == 0 {
		return
	}
	c.parts = append(c.parts, p)
}

func (c *Composite) ToSql() (string, []any, error) {
	switch len(c.parts) {
	case 0:
		return "", nil, nil
	case 1:
		return c.parts[0].ToSql()
	}

	sep := " AND "
	if c.mode == Or {
		sep = " OR "
	}

	var args []any
	sqlParts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		partSQL, partArgs, err := p.ToSql()
		if err != nil {
			return "", nil, err
		}
		if partSQL == "" {
			continue
		}
		sqlParts = append(sqlParts, partSQL)
		args = append(args, partArgs...)
	}
	if len(sqlParts) == 1 {
		return sqlParts[0], args, nil
	}
	return "(" + strings.Join(sqlParts, sep) + ")", args, nil
}
