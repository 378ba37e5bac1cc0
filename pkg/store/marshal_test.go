package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/tally/pkg/errors"
	"github.com/TFMV/tally/pkg/models"
)

func TestEnumMarshaler_RoundTrip(t *testing.T) {
	m := NewEnumMarshaler()

	for _, c := range models.Categories() {
		native, err := m.Marshal(c)
		require.NoError(t, err)

		back, err := m.Unmarshal(native)
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
}

func TestEnumMarshaler_Marshal_Repeatable(t *testing.T) {
	m := NewEnumMarshaler()

	first, err := m.Marshal(models.CategoryToDo)
	require.NoError(t, err)
	second, err := m.Marshal(models.CategoryToDo)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnumMarshaler_Marshal_Invalid(t *testing.T) {
	m := NewEnumMarshaler()

	_, err := m.Marshal(models.Category(7))
	require.Error(t, err)
	assert.Equal(t, errors.CodeMarshalFailed, errors.GetCode(err))
}

func TestEnumMarshaler_Unmarshal(t *testing.T) {
	m := NewEnumMarshaler()

	tests := []struct {
		name    string
		value   interface{}
		want    models.Category
		wantErr bool
	}{
		{"string label", "DONE", models.CategoryDone, false},
		{"byte slice label", []byte("TO_DO"), models.CategoryToDo, false},
		{"unknown label", "PENDING", 0, true},
		{"unexpected type", 42, 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Unmarshal(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeMarshalFailed, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
