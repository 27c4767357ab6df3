package history

import (
	"fmt"
	"strings"
)

// Category tags what kind of thing a record is about.
type Category int

// The closed set of record categories.
const (
	Medical Category = iota
	Malfunction
	Mission
	Task
	Transport
	Supply
	Hazard
	Settlement
	Construction

	numCategories
)

var categoryNames = [numCategories]string{
	"medical",
	"malfunction",
	"mission",
	"task",
	"transport",
	"supply",
	"hazard",
	"settlement",
	"construction",
}

// Categories returns every category.
func Categories() []Category {
	all := make([]Category, numCategories)
	for i := range all {
		all[i] = Category(i)
	}

	return all
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}

	return categoryNames[c]
}

// ParseCategory finds a category by name, ignoring case.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Category(i), nil
		}
	}

	return 0, fmt.Errorf("history: unknown category %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if c < 0 || c >= numCategories {
		return nil, fmt.Errorf("history: unknown category %d", int(c))
	}

	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}
