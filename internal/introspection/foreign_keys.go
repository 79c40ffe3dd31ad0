package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint is a foreign key with its columns in ordinal order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups a table's per-column FK rows by constraint.
// Constraints are ordered by name; unnamed rows each form their own constraint.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	groups := make(map[string][]ForeignKey)
	var names []string
	for i, fk := range table.ForeignKeys {
		name := fk.ConstraintName
		if name == "" {
			name = fmt.Sprintf("\x00unnamed_%04d", i)
		}
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], fk)
	}
	sort.Strings(names)

	out := make([]ForeignKeyConstraint, 0, len(names))
	for _, name := range names {
		cols := groups[name]
		sort.SliceStable(cols, func(i, j int) bool {
			return cols[i].OrdinalPosition < cols[j].OrdinalPosition
		})
		c := ForeignKeyConstraint{
			ConstraintName:  cols[0].ConstraintName,
			ReferencedTable: cols[0].ReferencedTable,
		}
		for _, col := range cols {
			c.ColumnNames = append(c.ColumnNames, col.ColumnName)
			c.ReferencedColumns = append(c.ReferencedColumns, col.ReferencedColumn)
		}
		out = append(out, c)
	}
	return out
}

// PrimaryKeyColumns returns all primary key columns for a table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}
