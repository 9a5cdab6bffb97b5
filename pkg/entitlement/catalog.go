package entitlement

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyCatalog           = errors.New("entitlement catalog is empty")
	ErrInvalidCatalog         = errors.New("invalid entitlement catalog")
	ErrFailedToDecodeCatalog  = errors.New("failed to decode entitlement catalog")
	ErrMissingBaseBundleEntry = errors.New("entitlement catalog has no base bundle item")
)

// Catalog maps billing provider item (price) identifiers to entitlement
// keys. The mapping is one-to-one; item ids not present in the catalog
// are ignored by Derive for forward compatibility with items added on
// the provider side before a deploy.
type Catalog map[string]Key

// DefaultCatalog returns the production price mapping as configured in
// the Stripe dashboard. Deployments pointing at a different Stripe
// account load their own mapping through a CatalogSource instead.
func DefaultCatalog() Catalog {
	return Catalog{
		"price_1ShGWULOQsTENXFlKx62Lxlx": KeyBaseBundle,
		"price_1ShGX9LOQsTENXFlz3FXikyg": KeyLunarCalendar,
		"price_1ShGXVLOQsTENXFlygB8zOK0": KeyAstrogematria,
		"price_1ShGY7LOQsTENXFlvmAt6Nk2": KeyElectiveChart,
		"price_1ShGYSLOQsTENXFlGVyzY7t4": KeyDraconic,
	}
}

// BaseBundleItemID returns the provider item id that maps to the base
// bundle entitlement, or "" if the catalog has none.
func (c Catalog) BaseBundleItemID() string {
	for itemID, key := range c {
		if key == KeyBaseBundle {
			return itemID
		}
	}
	return ""
}

// Validate ensures the catalog is usable: non-empty, known keys only,
// and exactly one base bundle entry.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}

	baseBundles := 0
	for itemID, key := range c {
		switch key {
		case KeyBaseBundle:
			baseBundles++
		case KeyLunarCalendar, KeyAstrogematria, KeyElectiveChart, KeyDraconic:
		default:
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("item %s maps to unknown entitlement %q", itemID, key))
		}
	}

	if baseBundles == 0 {
		return ErrMissingBaseBundleEntry
	}
	if baseBundles > 1 {
		return errors.Join(ErrInvalidCatalog,
			errors.New("multiple items map to the base bundle"))
	}
	return nil
}

// CatalogSource loads a catalog, mirroring how plan definitions are
// sourced elsewhere: a static in-code default for most deployments, a
// YAML document when price ids differ per environment.
type CatalogSource interface {
	Load(ctx context.Context) (Catalog, error)
}

// StaticSource returns the same catalog on every load.
type StaticSource Catalog

func (s StaticSource) Load(_ context.Context) (Catalog, error) {
	c := Catalog(s)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// YAMLSource reads a catalog from a YAML document of the form:
//
//	items:
//	  price_123: base_bundle
//	  price_456: lunar_calendar
type YAMLSource struct {
	Reader io.Reader
}

func (s YAMLSource) Load(_ context.Context) (Catalog, error) {
	var doc struct {
		Items map[string]Key `yaml:"items"`
	}
	if err := yaml.NewDecoder(s.Reader).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToDecodeCatalog, err)
	}

	c := Catalog(doc.Items)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
