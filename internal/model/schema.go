package model

import (
	"fmt"
	"log/slog"
	"strings"

	"entityql/internal/introspection"
	"entityql/internal/naming"
)

// Config controls how an introspected schema is mapped to entity types.
type Config struct {
	Naming naming.Config `mapstructure:"naming"`
	// Hierarchies declares table-per-hierarchy mappings.
	Hierarchies []HierarchyConfig `mapstructure:"hierarchies"`
	// ComputedColumns lists extra read-only columns per table, on top of
	// generated columns found by introspection.
	ComputedColumns map[string][]string `mapstructure:"computed_columns"`
	// ShadowForeignKeys hides foreign key columns from the exposed field set.
	ShadowForeignKeys bool     `mapstructure:"shadow_foreign_keys"`
	ExcludeTables     []string `mapstructure:"exclude_tables"`
}

// HierarchyConfig maps one table to an inheritance hierarchy.
type HierarchyConfig struct {
	Table         string `mapstructure:"table"`
	Discriminator string `mapstructure:"discriminator"`
	// Abstract marks the root type as abstract.
	Abstract bool `mapstructure:"abstract"`
	// Value is the discriminator value of a concrete root.
	Value string              `mapstructure:"value"`
	Types []DerivedTypeConfig `mapstructure:"types"`
}

// DerivedTypeConfig declares one derived type of a hierarchy.
type DerivedTypeConfig struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
	// Base defaults to the hierarchy root.
	Base     string `mapstructure:"base"`
	Abstract bool   `mapstructure:"abstract"`
	// Columns are declared on this type instead of the root.
	Columns []string `mapstructure:"columns"`
}

// FromSchema derives a model from database introspection. Tables become
// entity types, columns become properties and foreign keys become a reference
// navigation on the dependent type plus a collection on the principal type.
func FromSchema(schema *introspection.Schema, cfg Config) (*Model, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	namer := naming.New(cfg.Naming)
	b := NewBuilder()

	hierarchies := make(map[string]HierarchyConfig, len(cfg.Hierarchies))
	for _, h := range cfg.Hierarchies {
		hierarchies[h.Table] = h
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeTables))
	for _, name := range cfg.ExcludeTables {
		excluded[name] = struct{}{}
	}

	rootByTable := make(map[string]string)
	// owner maps table -> column -> declaring entity name
	owner := make(map[string]map[string]string)
	tables := make(map[string]introspection.Table)

	for _, table := range schema.Tables {
		if _, skip := excluded[table.Name]; skip {
			continue
		}
		pks := introspection.PrimaryKeyColumns(table)
		if len(pks) == 0 {
			slog.Default().Warn("skipping table without primary key", slog.String("table", table.Name))
			continue
		}
		tables[table.Name] = table
		rootName := namer.EntityName(table.Name)
		rootByTable[table.Name] = rootName

		h, isHierarchy := hierarchies[table.Name]
		columnOwner := make(map[string]string, len(table.Columns))
		for _, col := range table.Columns {
			columnOwner[col.Name] = rootName
		}
		if isHierarchy {
			for _, d := range h.Types {
				for _, c := range d.Columns {
					columnOwner[c] = d.Name
				}
			}
		}
		owner[table.Name] = columnOwner

		fkColumns := make(map[string]struct{})
		for _, fk := range table.ForeignKeys {
			fkColumns[fk.ColumnName] = struct{}{}
		}
		computed := make(map[string]struct{})
		for _, c := range cfg.ComputedColumns[table.Name] {
			computed[c] = struct{}{}
		}

		builders := map[string]*EntityBuilder{rootName: b.Entity(rootName, table.Name)}
		root := builders[rootName]
		if isHierarchy {
			root.Discriminator(h.Discriminator)
			if h.Abstract {
				root.Abstract()
			} else {
				root.HasDiscriminatorValue(h.Value)
			}
			for _, d := range h.Types {
				eb := b.Entity(d.Name, "")
				base := d.Base
				if base == "" {
					base = rootName
				}
				eb.Derives(base, d.Value)
				if d.Abstract {
					eb.Abstract()
				}
				builders[d.Name] = eb
			}
		}

		keys := make([]string, 0, len(pks))
		for _, pk := range pks {
			keys = append(keys, namer.PropertyName(pk.Name))
		}
		root.Key(keys...)

		for _, col := range table.Columns {
			if isHierarchy && col.Name == h.Discriminator {
				continue
			}
			opts := []PropertyOption{Column(col.Name)}
			if col.IsNullable {
				opts = append(opts, Nullable())
			}
			_, extraComputed := computed[col.Name]
			if col.IsGenerated || extraComputed {
				opts = append(opts, ReadOnly())
			}
			if _, isFK := fkColumns[col.Name]; isFK && cfg.ShadowForeignKeys {
				opts = append(opts, Shadow())
			}
			declaring := builders[columnOwner[col.Name]]
			if declaring == nil {
				return nil, fmt.Errorf("table %s: column %s assigned to unknown type %s", table.Name, col.Name, columnOwner[col.Name])
			}
			declaring.Property(namer.PropertyName(col.Name), KindForSQLType(col.DataType), opts...)
		}
	}

	for _, ordered := range schema.Tables {
		table, ok := tables[ordered.Name]
		if !ok {
			continue
		}
		tableName := table.Name
		constraints := introspection.ForeignKeyConstraints(table)
		perTarget := make(map[string]int)
		for _, fk := range constraints {
			perTarget[fk.ReferencedTable]++
		}
		for _, fk := range constraints {
			principalName, ok := rootByTable[fk.ReferencedTable]
			if !ok {
				continue
			}
			declaring := owner[tableName][fk.ColumnNames[0]]
			dependentRoot := rootByTable[tableName]

			refName := namer.ReferenceName(fk.ColumnNames[0])
			if len(fk.ColumnNames) > 1 {
				refName = namer.EntityName(fk.ReferencedTable)
				if perTarget[fk.ReferencedTable] > 1 {
					refName = naming.ToPascalCase(fk.ConstraintName)
				}
			}
			if hasProperty(namer, table, refName) {
				refName += "Ref"
			}
			fkProps := make([]string, len(fk.ColumnNames))
			for i, c := range fk.ColumnNames {
				fkProps[i] = namer.PropertyName(c)
			}
			pkProps := make([]string, len(fk.ReferencedColumns))
			for i, c := range fk.ReferencedColumns {
				pkProps[i] = namer.PropertyName(c)
			}

			b.navigationFor(declaring).
				Reference(refName, principalName, fkProps...).
				PrincipalKeys(pkProps...)

			collectionName := namer.CollectionName(dependentRoot, fk.ColumnNames[0], perTarget[fk.ReferencedTable] == 1)
			if hasProperty(namer, tables[fk.ReferencedTable], collectionName) {
				collectionName += "List"
			}
			b.navigationFor(principalName).
				Collection(collectionName, declaring, fkProps...).
				PrincipalKeys(pkProps...)
		}
	}

	return b.Build()
}

func hasProperty(namer *naming.Namer, table introspection.Table, name string) bool {
	for _, col := range table.Columns {
		if strings.EqualFold(namer.PropertyName(col.Name), name) {
			return true
		}
	}
	return false
}

// navigationFor returns a builder bound to an already declared entity.
func (b *Builder) navigationFor(name string) *EntityBuilder {
	for _, spec := range b.entities {
		if strings.EqualFold(spec.name, name) {
			return &EntityBuilder{b: b, spec: spec}
		}
	}
	// Build reports the unknown declaring type.
	return &EntityBuilder{b: b, spec: &entitySpec{name: name}}
}
