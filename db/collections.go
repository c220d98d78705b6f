package db

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCollections maps the logical entity names bulk jobs accept to
// physical collection names
var DefaultCollections = map[string]string{
	"products":   "products",
	"inventory":  "inventory",
	"categories": "categories",
	"reviews":    "reviews",
	"users":      "users",
	"orders":     "orders",
	"shops":      "shops",
	"coupons":    "coupons",
	"auctions":   "auctions",
	"tickets":    "support_tickets",
}

// CollectionResolver maps logical entity names to physical collections
type CollectionResolver struct {
	names map[string]string
}

// NewCollectionResolver builds a resolver from a logical → physical map
func NewCollectionResolver(names map[string]string) *CollectionResolver {
	m := make(map[string]string, len(names))
	for k, v := range names {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &CollectionResolver{names: m}
}

type collectionsFile struct {
	Collections map[string]string `yaml:"collections"`
}

// LoadCollectionResolver reads overrides from a YAML file of the form
//
//	collections:
//	  products: catalog_products
//
// on top of DefaultCollections. An empty path yields the defaults.
func LoadCollectionResolver(path string) (*CollectionResolver, error) {
	names := make(map[string]string, len(DefaultCollections))
	for k, v := range DefaultCollections {
		names[k] = v
	}
	if path == "" {
		return NewCollectionResolver(names), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections file: %w", err)
	}
	var f collectionsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse collections file %s: %w", path, err)
	}
	for k, v := range f.Collections {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("collections file %s: empty collection name for %q", path, k)
		}
		names[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return NewCollectionResolver(names), nil
}

// Resolve returns the physical collection for a logical name
func (r *CollectionResolver) Resolve(logical string) (string, error) {
	name, ok := r.names[strings.ToLower(strings.TrimSpace(logical))]
	if !ok {
		return "", fmt.Errorf("invalid collection: %q", logical)
	}
	return name, nil
}
