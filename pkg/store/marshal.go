package store

import (
	"fmt"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/models"
)

// CategoryMarshaler converts between models.Category and the native value
// the store expects for its enumerated type.
type CategoryMarshaler interface {
	Marshal(c models.Category) (interface{}, error)
	Unmarshal(v interface{}) (models.Category, error)
}

// EnumMarshaler maps categories to the textual enum representation DuckDB
// (and PostgreSQL) accept for user-defined enum types.
type EnumMarshaler struct{}

// NewEnumMarshaler creates a text enum marshaler.
func NewEnumMarshaler() CategoryMarshaler {
	return EnumMarshaler{}
}

// Marshal returns the canonical enum label for the category.
func (EnumMarshaler) Marshal(c models.Category) (interface{}, error) {
	if !c.Valid() {
		return nil, errors.New(errors.CodeMarshalFailed, "category out of range").
			WithDetail("category", int(c))
	}
	return c.String(), nil
}

// Unmarshal parses a store value back into a category. DuckDB returns enum
// values as strings; some drivers hand back byte slices.
func (EnumMarshaler) Unmarshal(v interface{}) (models.Category, error) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	default:
		return 0, errors.New(errors.CodeMarshalFailed, "unexpected enum value type").
			WithDetail("type", fmt.Sprintf("%T", v))
	}

	c, err := models.ParseCategory(s)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeMarshalFailed, "unknown enum label")
	}
	return c, nil
}
