package store

import (
	"fmt"
	"strings"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/models"
)

// IdentityStrategy selects how a record's identifier is assigned, per table.
type IdentityStrategy int

const (
	// IdentityClientAssigned writes the record's ID field.
	IdentityClientAssigned IdentityStrategy = iota
	// IdentityStoreAssigned omits the id column; the store fills it from a
	// sequence or default.
	IdentityStoreAssigned
	// IdentityNone omits the id column entirely; the table carries no
	// identifier.
	IdentityNone
)

// String returns the configuration spelling of the strategy.
func (s IdentityStrategy) String() string {
	switch s {
	case IdentityClientAssigned:
		return "client"
	case IdentityStoreAssigned:
		return "store"
	case IdentityNone:
		return "none"
	default:
		return fmt.Sprintf("IdentityStrategy(%d)", int(s))
	}
}

// ParseIdentityStrategy maps a configuration string to a strategy.
func ParseIdentityStrategy(s string) (IdentityStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return IdentityClientAssigned, nil
	case "store":
		return IdentityStoreAssigned, nil
	case "none":
		return IdentityNone, nil
	default:
		return 0, errors.New(errors.CodeInvalidConfig, "unknown identity strategy").
			WithDetail("strategy", s)
	}
}

// InsertStatement builds the parameterized INSERT for a record table under
// the given identity strategy. For example, for table "task" with
// client-assigned identity:
//
//	INSERT INTO task (id, name, status) VALUES (?, ?, ?)
func InsertStatement(table string, strategy IdentityStrategy) string {
	columns := []string{"name", "status"}
	if strategy == IdentityClientAssigned {
		columns = append([]string{"id"}, columns...)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")
	return b.String()
}

// BindRecord produces the parameter list matching InsertStatement's column
// order for the same strategy.
func BindRecord(rec models.Record, strategy IdentityStrategy, m CategoryMarshaler) ([]interface{}, error) {
	status, err := m.Marshal(rec.Category)
	if err != nil {
		return nil, err
	}
	if strategy == IdentityClientAssigned {
		return []interface{}{rec.ID, rec.Label, status}, nil
	}
	return []interface{}{rec.Label, status}, nil
}
