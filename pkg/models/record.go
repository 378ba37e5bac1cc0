// Package models contains the data types shared by the batch and plan components.
package models

import (
	"fmt"
)

// Category is an enumerated record classification of fixed cardinality.
// It maps onto a native enum type in the backing store.
type Category int

const (
	CategoryDone Category = iota
	CategoryToDo
	CategoryFailed
)

// categoryNames holds the store-facing spelling of each category.
var categoryNames = [...]string{
	CategoryDone:   "DONE",
	CategoryToDo:   "TO_DO",
	CategoryFailed: "FAILED",
}

// String returns the canonical name of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether the category is one of the known variants.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryNames)
}

// ParseCategory maps a canonical name back to its Category.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", s)
}

// Categories returns all known category variants in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range categoryNames {
		out[i] = Category(i)
	}
	return out
}

// Record is an immutable write unit. The zero ID means the store assigns
// the identifier; see store.IdentityStrategy.
type Record struct {
	ID       int64
	Label    string
	Category Category
}

// NewRecord creates a record with a client-assigned identifier.
func NewRecord(id int64, label string, category Category) Record {
	return Record{ID: id, Label: label, Category: category}
}
