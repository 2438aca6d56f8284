// Package introspect loads the structure of a target database into schema
// fragments, one per table plus one for cross-table relationships.
package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/querybuddy/querybuddy/domain/schema"
	"github.com/querybuddy/querybuddy/internal/database"
)

// Loader introspects a target database.
type Loader struct {
	db         database.Database
	sampleRows int
}

// NewLoader creates a Loader. sampleRows controls how many rows per table
// are included in fragment text; zero disables sampling.
func NewLoader(db database.Database, sampleRows int) *Loader {
	return &Loader{db: db, sampleRows: sampleRows}
}

// Load introspects every user table and returns one fragment per table
// plus the relationships fragment, in stable name order. An empty database
// yields only the relationships fragment.
func (l *Loader) Load(ctx context.Context) ([]schema.Fragment, error) {
	if err := l.ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrConnection, err)
	}

	tables, err := l.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %w", schema.ErrIntrospection, err)
	}

	fragments := make([]schema.Fragment, 0, len(tables)+1)
	for _, table := range tables {
		fragment, err := l.loadTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %w", schema.ErrIntrospection, table, err)
		}
		fragments = append(fragments, fragment)
	}

	fragments = append(fragments, schema.NewRelationshipFragment(schema.RelationshipsText(fragments)))
	return fragments, nil
}

func (l *Loader) loadTable(ctx context.Context, table string) (schema.Fragment, error) {
	columns, err := l.columns(ctx, table)
	if err != nil {
		return schema.Fragment{}, fmt.Errorf("columns: %w", err)
	}

	fks, err := l.foreignKeys(ctx, table)
	if err != nil {
		return schema.Fragment{}, fmt.Errorf("foreign keys: %w", err)
	}

	fragment := schema.NewFragment(table, columns, fks)

	if l.sampleRows > 0 {
		// Sampling failures are non-fatal: the fragment is still usable
		// without example rows.
		if sampleText, err := l.sampleText(ctx, table, columns); err == nil && sampleText != "" {
			fragment = fragment.WithSamples(sampleText)
		}
	}

	return fragment, nil
}

// ping verifies the target database is reachable before any catalog reads.
func (l *Loader) ping(ctx context.Context) error {
	sqlDB, err := l.db.Session(ctx).DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (l *Loader) tableNames(ctx context.Context) ([]string, error) {
	var names []string
	var err error
	if l.db.IsPostgres() {
		err = l.db.Session(ctx).Raw(
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
			 ORDER BY table_name`,
		).Scan(&names).Error
	} else {
		err = l.db.Session(ctx).Raw(
			`SELECT name FROM sqlite_master
			 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			 ORDER BY name`,
		).Scan(&names).Error
	}
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (l *Loader) columns(ctx context.Context, table string) ([]schema.Column, error) {
	if l.db.IsPostgres() {
		return l.postgresColumns(ctx, table)
	}
	return l.sqliteColumns(ctx, table)
}

func (l *Loader) sqliteColumns(ctx context.Context, table string) ([]schema.Column, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}

	var rows []struct {
		Name    string `gorm:"column:name"`
		Type    string `gorm:"column:type"`
		NotNull int    `gorm:"column:notnull"`
		PK      int    `gorm:"column:pk"`
	}
	// PRAGMA does not accept bind parameters; the identifier is validated
	// above and comes from sqlite_master, not user input.
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(table))
	if err := l.db.Session(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}

	columns := make([]schema.Column, len(rows))
	for i, row := range rows {
		// INTEGER PRIMARY KEY columns are implicitly NOT NULL in SQLite.
		nullable := row.NotNull == 0 && row.PK == 0
		columns[i] = schema.NewColumn(row.Name, strings.ToUpper(row.Type), nullable, row.PK > 0)
	}
	return columns, nil
}

func (l *Loader) postgresColumns(ctx context.Context, table string) ([]schema.Column, error) {
	var rows []struct {
		ColumnName string `gorm:"column:column_name"`
		DataType   string `gorm:"column:data_type"`
		IsNullable string `gorm:"column:is_nullable"`
	}
	err := l.db.Session(ctx).Raw(
		`SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = ?
		 ORDER BY ordinal_position`, table,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	primary, err := l.postgresPrimaryKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	columns := make([]schema.Column, len(rows))
	for i, row := range rows {
		columns[i] = schema.NewColumn(
			row.ColumnName,
			strings.ToUpper(row.DataType),
			row.IsNullable == "YES",
			primary[row.ColumnName],
		)
	}
	return columns, nil
}

func (l *Loader) postgresPrimaryKeys(ctx context.Context, table string) (map[string]bool, error) {
	var names []string
	err := l.db.Session(ctx).Raw(
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		   AND tc.table_schema = 'public' AND tc.table_name = ?`, table,
	).Scan(&names).Error
	if err != nil {
		return nil, err
	}

	primary := make(map[string]bool, len(names))
	for _, name := range names {
		primary[name] = true
	}
	return primary, nil
}

func (l *Loader) foreignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	if l.db.IsPostgres() {
		return l.postgresForeignKeys(ctx, table)
	}
	return l.sqliteForeignKeys(ctx, table)
}

func (l *Loader) sqliteForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}

	var rows []struct {
		Table string `gorm:"column:table"`
		From  string `gorm:"column:from"`
		To    string `gorm:"column:to"`
	}
	query := fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, quoteIdentifier(table))
	if err := l.db.Session(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}

	fks := make([]schema.ForeignKey, len(rows))
	for i, row := range rows {
		referredColumn := row.To
		if referredColumn == "" {
			// SQLite leaves "to" empty when the reference targets the
			// referred table's primary key implicitly.
			referredColumn = "id"
		}
		fks[i] = schema.NewForeignKey(row.From, row.Table, referredColumn)
	}
	return fks, nil
}

func (l *Loader) postgresForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	var rows []struct {
		ColumnName        string `gorm:"column:column_name"`
		ForeignTableName  string `gorm:"column:foreign_table_name"`
		ForeignColumnName string `gorm:"column:foreign_column_name"`
	}
	err := l.db.Session(ctx).Raw(
		`SELECT kcu.column_name,
		        ccu.table_name AS foreign_table_name,
		        ccu.column_name AS foreign_column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		   AND tc.table_schema = 'public' AND tc.table_name = ?
		 ORDER BY kcu.ordinal_position`, table,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	fks := make([]schema.ForeignKey, len(rows))
	for i, row := range rows {
		fks[i] = schema.NewForeignKey(row.ColumnName, row.ForeignTableName, row.ForeignColumnName)
	}
	return fks, nil
}

// sampleText renders up to sampleRows rows as "col=value" lines in column
// order.
func (l *Loader) sampleText(ctx context.Context, table string, columns []schema.Column) (string, error) {
	if err := validIdentifier(table); err != nil {
		return "", err
	}

	var rows []map[string]any
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdentifier(table), l.sampleRows)
	if err := l.db.Session(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  ")
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", col.Name(), formatValue(row[col.Name()]))
		}
	}
	return b.String(), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// validIdentifier rejects table names that cannot be safely quoted.
// Names come from the database catalog, not user input, so this only
// guards against exotic identifiers.
func validIdentifier(name string) error {
	if name == "" || strings.ContainsAny(name, "\"`;") {
		return fmt.Errorf("unsafe identifier %q", name)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + name + `"`
}
