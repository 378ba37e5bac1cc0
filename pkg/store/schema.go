package store

import (
	"fmt"
	"strings"
)

// Schema SQL generation for the record table. DDL goes through
// Channel.ExecuteWrite; these helpers only build the text.

// CreateEnumTypeSQL builds the user-defined enum type holding the category
// labels, in declaration order.
func CreateEnumTypeSQL(typeName string, labels []string) string {
	var b strings.Builder
	b.WriteString("CREATE TYPE ")
	b.WriteString(typeName)
	b.WriteString(" AS ENUM (")
	for i, label := range labels {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("'")
		b.WriteString(label)
		b.WriteString("'")
	}
	b.WriteString(")")
	return b.String()
}

// DropTypeSQL drops the enum type if present.
func DropTypeSQL(typeName string) string {
	return fmt.Sprintf("DROP TYPE IF EXISTS %s", typeName)
}

// CreateSequenceSQL builds the sequence backing store-assigned identity.
func CreateSequenceSQL(name string) string {
	return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", name)
}

// CreateTableSQL builds the record table. The id column follows the identity
// strategy: client-assigned carries a plain primary key, store-assigned
// defaults to the table's sequence, none drops the column.
func CreateTableSQL(table, enumType string, strategy IdentityStrategy) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")
	switch strategy {
	case IdentityClientAssigned:
		b.WriteString("id BIGINT PRIMARY KEY, ")
	case IdentityStoreAssigned:
		fmt.Fprintf(&b, "id BIGINT PRIMARY KEY DEFAULT nextval('%s'), ", SequenceName(table))
	case IdentityNone:
		// no id column
	}
	b.WriteString("name VARCHAR(50), ")
	b.WriteString("status ")
	b.WriteString(enumType)
	b.WriteString(")")
	return b.String()
}

// SequenceName returns the sequence backing store-assigned identity for a table.
func SequenceName(table string) string {
	return table + "_id_seq"
}

// DropTableSQL drops the record table if present.
func DropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

// CreateIndexSQL builds a full index over one column.
func CreateIndexSQL(name, table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, column)
}

// CreatePartialIndexSQL builds an index restricted to rows matching the
// predicate, shrinking the index to the selective subset.
func CreatePartialIndexSQL(name, table, column, predicate string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s", name, table, column, predicate)
}

// DropIndexSQL drops an index if present.
func DropIndexSQL(name string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", name)
}
