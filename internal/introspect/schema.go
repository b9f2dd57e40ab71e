package introspect

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IDColumn is the integer primary key every scanned table carries.
const IDColumn = "id"

// Column represents a table column.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type,omitempty"`
	Nullable bool   `json:"nullable" yaml:"nullable,omitempty"`
	PK       bool   `json:"pk" yaml:"pk,omitempty"`
}

// ForeignKey represents a foreign key relationship as reported by a live database.
// Multi-column keys list their columns comma separated, in key order.
type ForeignKey struct {
	FromSchema string `json:"from_schema,omitempty"`
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToSchema   string `json:"to_schema,omitempty"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Constraint string `json:"constraint,omitempty"`
}

// Relationship is a declared reference from local columns to columns of another table.
type Relationship struct {
	Fields    []string `json:"fields" yaml:"fields"`
	RefTable  string   `json:"reftable" yaml:"reftable"`
	RefFields []string `json:"reffields" yaml:"reffields"`
}

// Table represents a database table, its columns and declared relationships.
type Table struct {
	Schema        string         `json:"schema,omitempty" yaml:"schema,omitempty"`
	Name          string         `json:"name" yaml:"name"`
	Columns       []Column       `json:"columns" yaml:"columns,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Comment       *string        `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Schema is the full set of tables, plus raw foreign keys when extracted live.
type Schema struct {
	Tables      []Table      `json:"tables" yaml:"tables"`
	ForeignKeys []ForeignKey `json:"foreign_keys" yaml:"-"`
}

// LoadSchemaFile reads a declared schema from a YAML file.
func LoadSchemaFile(path string) (Schema, error) {
	var s Schema
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse schema %s: %w", path, err)
	}
	for _, t := range s.Tables {
		for _, r := range t.Relationships {
			if len(r.Fields) == 0 || len(r.Fields) != len(r.RefFields) {
				return Schema{}, fmt.Errorf("table %s: relationship to %s has %d fields and %d reffields",
					t.Name, r.RefTable, len(r.Fields), len(r.RefFields))
			}
		}
	}
	return s, nil
}

// WithRelationships folds the raw foreign keys into per-table relationships,
// keeping the order in which the keys were reported. prefix is stripped from
// table names so the result matches a prefix-less declared schema.
func (s Schema) WithRelationships(prefix string) Schema {
	out := Schema{ForeignKeys: s.ForeignKeys}
	index := make(map[string]int, len(s.Tables))
	for _, t := range s.Tables {
		t.Name = strings.TrimPrefix(t.Name, prefix)
		t.Relationships = append([]Relationship(nil), t.Relationships...)
		index[t.Name] = len(out.Tables)
		out.Tables = append(out.Tables, t)
	}
	for _, fk := range s.ForeignKeys {
		i, ok := index[strings.TrimPrefix(fk.FromTable, prefix)]
		if !ok {
			continue
		}
		out.Tables[i].Relationships = append(out.Tables[i].Relationships, Relationship{
			Fields:    splitColumns(fk.FromColumn),
			RefTable:  strings.TrimPrefix(fk.ToTable, prefix),
			RefFields: splitColumns(fk.ToColumn),
		})
	}
	return out
}

func splitColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
