package guard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jrsteele09/go-admin-session/internal/config"
)

// Class is the route class of a path
type Class int

const (
	Protected Class = iota
	Public
	// PublicUnauthenticatedOnly paths, such as the login page, send signed-in visitors home
	PublicUnauthenticatedOnly
)

func (c Class) String() string {
	switch c {
	case Public:
		return config.RouteClassPublic
	case PublicUnauthenticatedOnly:
		return config.RouteClassPublicUnauthenticatedOnly
	default:
		return config.RouteClassProtected
	}
}

// ParseClass parses the class names used in configuration
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.RouteClassPublic:
		return Public, nil
	case config.RouteClassPublicUnauthenticatedOnly:
		return PublicUnauthenticatedOnly, nil
	case config.RouteClassProtected:
		return Protected, nil
	default:
		return Protected, fmt.Errorf("unknown route class %q", s)
	}
}

// Rule tags a path prefix with a class. A prefix matches itself and anything below it:
// "/help" matches "/help" and "/help/faq" but not "/helpdesk". A prefix ending in "/"
// matches everything under it.
type Rule struct {
	Prefix string
	Class  Class
}

// Table classifies paths by their longest matching prefix. Unmatched paths are protected.
type Table struct {
	rules []Rule
}

func NewTable(rules []Rule) *Table {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{rules: sorted}
}

// TableFromConfig builds a table from the configured classification rules
func TableFromConfig(rules []config.RouteRule) (*Table, error) {
	table := make([]Rule, 0, len(rules))
	for _, r := range rules {
		class, err := ParseClass(r.Class)
		if err != nil {
			return nil, err
		}
		if r.Prefix == "" {
			continue
		}
		table = append(table, Rule{Prefix: r.Prefix, Class: class})
	}
	return NewTable(table), nil
}

func (t *Table) Classify(path string) Class {
	for _, r := range t.rules {
		if matches(r.Prefix, path) {
			return r.Class
		}
	}
	return Protected
}

func matches(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}
