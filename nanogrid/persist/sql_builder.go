package persist

import (
	"fmt"

	"github.com/Masterminds/squirrel"
)

// sqlBuilder wraps squirrel to generate parameterized SQL
type sqlBuilder struct {
	sq squirrel.StatementBuilderType
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

func (b *sqlBuilder) buildInsert(table string, columns []string, values []any) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns specified for insert")
	}
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("column count (%d) does not match value count (%d)", len(columns), len(values))
	}
	return b.sq.Insert(table).Columns(columns...).Values(values...).ToSql()
}

func (b *sqlBuilder) buildSelect(table string, columns []string, where squirrel.Eq, orderBy ...string) (string, []any, error) {
	query := b.sq.Select(columns...).From(table)
	if len(where) > 0 {
		query = query.Where(where)
	}
	if len(orderBy) > 0 {
		query = query.OrderBy(orderBy...)
	}
	return query.ToSql()
}

func (b *sqlBuilder) buildUpdate(table string, set map[string]any, where squirrel.Eq) (string, []any, error) {
	if len(set) == 0 {
		return "", nil, fmt.Errorf("no columns specified for update")
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("no condition specified for update")
	}
	return b.sq.Update(table).SetMap(set).Where(where).ToSql()
}

func (b *sqlBuilder) buildDelete(table string, where squirrel.Eq) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("no condition specified for delete")
	}
	return b.sq.Delete(table).Where(where).ToSql()
}
