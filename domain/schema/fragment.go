// Package schema holds the normalized description of a database schema
// used as the retrieval unit for SQL generation.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Column describes a single table column.
type Column struct {
	name     string
	dataType string
	nullable bool
	primary  bool
}

// NewColumn creates a Column.
func NewColumn(name, dataType string, nullable, primary bool) Column {
	return Column{
		name:     name,
		dataType: dataType,
		nullable: nullable,
		primary:  primary,
	}
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// DataType returns the column's declared type.
func (c Column) DataType() string { return c.dataType }

// Nullable reports whether the column accepts NULL.
func (c Column) Nullable() bool { return c.nullable }

// PrimaryKey reports whether the column is part of the primary key.
func (c Column) PrimaryKey() bool { return c.primary }

// ForeignKey describes a reference from one table's column to another's.
type ForeignKey struct {
	column         string
	referredTable  string
	referredColumn string
}

// NewForeignKey creates a ForeignKey.
func NewForeignKey(column, referredTable, referredColumn string) ForeignKey {
	return ForeignKey{
		column:         column,
		referredTable:  referredTable,
		referredColumn: referredColumn,
	}
}

// Column returns the constrained column name.
func (f ForeignKey) Column() string { return f.column }

// ReferredTable returns the referenced table name.
func (f ForeignKey) ReferredTable() string { return f.referredTable }

// ReferredColumn returns the referenced column name.
func (f ForeignKey) ReferredColumn() string { return f.referredColumn }

// Fragment is one retrieval unit: a textual description of a single table
// (or of the relationships between tables). Immutable once loaded; rebuilt
// whenever the schema is re-introspected.
type Fragment struct {
	id          string
	tableName   string
	columns     []Column
	foreignKeys []ForeignKey
	sampleText  string
}

// NewFragment creates a table Fragment.
func NewFragment(tableName string, columns []Column, foreignKeys []ForeignKey) Fragment {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	fks := make([]ForeignKey, len(foreignKeys))
	copy(fks, foreignKeys)
	return Fragment{
		id:          "table:" + tableName,
		tableName:   tableName,
		columns:     cols,
		foreignKeys: fks,
	}
}

// NewRelationshipFragment creates the synthetic fragment that describes all
// foreign-key relationships across the schema in one retrieval unit.
func NewRelationshipFragment(text string) Fragment {
	return Fragment{
		id:         "relationships",
		sampleText: text,
	}
}

// WithSamples returns a copy of the fragment enriched with sample-row text.
func (f Fragment) WithSamples(sampleText string) Fragment {
	f.sampleText = sampleText
	return f
}

// ID returns the fragment identifier, unique within one schema load.
func (f Fragment) ID() string { return f.id }

// TableName returns the table this fragment describes, or empty for the
// relationship fragment.
func (f Fragment) TableName() string { return f.tableName }

// Columns returns the ordered column descriptions.
func (f Fragment) Columns() []Column {
	cols := make([]Column, len(f.columns))
	copy(cols, f.columns)
	return cols
}

// ForeignKeys returns the foreign keys declared on this table.
func (f Fragment) ForeignKeys() []ForeignKey {
	fks := make([]ForeignKey, len(f.foreignKeys))
	copy(fks, f.foreignKeys)
	return fks
}

// Text renders the fragment as the human-readable description that is
// embedded and placed verbatim into prompts.
func (f Fragment) Text() string {
	if f.tableName == "" {
		return f.sampleText
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", f.tableName)
	b.WriteString("Columns:\n")
	for _, col := range f.columns {
		fmt.Fprintf(&b, "  - %s: %s", col.name, col.dataType)
		if !col.nullable {
			b.WriteString(" (NOT NULL)")
		}
		if col.primary {
			b.WriteString(" (PRIMARY KEY)")
		}
		b.WriteString("\n")
	}
	if len(f.foreignKeys) > 0 {
		b.WriteString("Foreign Keys:\n")
		for _, fk := range f.foreignKeys {
			fmt.Fprintf(&b, "  - %s -> %s.%s\n", fk.column, fk.referredTable, fk.referredColumn)
		}
	}
	if f.sampleText != "" {
		b.WriteString("Sample data:\n")
		b.WriteString(f.sampleText)
		if !strings.HasSuffix(f.sampleText, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ContentHash returns a stable hash of the fragment text, used to detect
// schema changes and invalidate cached embeddings.
func (f Fragment) ContentHash() string {
	sum := sha256.Sum256([]byte(f.Text()))
	return hex.EncodeToString(sum[:])
}

// RelationshipsText renders the cross-table relationship summary for a set
// of table fragments.
func RelationshipsText(fragments []Fragment) string {
	var rels []string
	for _, f := range fragments {
		for _, fk := range f.foreignKeys {
			rels = append(rels, fmt.Sprintf("  - %s.%s references %s.%s",
				f.tableName, fk.column, fk.referredTable, fk.referredColumn))
		}
	}
	if len(rels) == 0 {
		return "No foreign key relationships found."
	}
	return "Table Relationships:\n" + strings.Join(rels, "\n")
}
