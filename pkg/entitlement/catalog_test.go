package entitlement_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralhq/astrokit/pkg/entitlement"
)

func TestCatalog_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid catalog", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, testCatalog().Validate())
	})

	t.Run("empty catalog", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, entitlement.Catalog{}.Validate(), entitlement.ErrEmptyCatalog)
	})

	t.Run("missing base bundle", func(t *testing.T) {
		t.Parallel()
		c := entitlement.Catalog{"price_lunar": entitlement.KeyLunarCalendar}
		assert.ErrorIs(t, c.Validate(), entitlement.ErrMissingBaseBundleEntry)
	})

	t.Run("duplicate base bundle", func(t *testing.T) {
		t.Parallel()
		c := entitlement.Catalog{
			"price_a": entitlement.KeyBaseBundle,
			"price_b": entitlement.KeyBaseBundle,
		}
		assert.ErrorIs(t, c.Validate(), entitlement.ErrInvalidCatalog)
	})

	t.Run("unknown entitlement key", func(t *testing.T) {
		t.Parallel()
		c := entitlement.Catalog{
			"price_a": entitlement.KeyBaseBundle,
			"price_b": entitlement.Key("telepathy"),
		}
		assert.ErrorIs(t, c.Validate(), entitlement.ErrInvalidCatalog)
	})
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	catalog := entitlement.DefaultCatalog()
	require.NoError(t, catalog.Validate())
	assert.Len(t, catalog, 5)
	assert.Equal(t, "price_1ShGWULOQsTENXFlKx62Lxlx", catalog.BaseBundleItemID())
	assert.Equal(t, entitlement.KeyDraconic, catalog["price_1ShGYSLOQsTENXFlGVyzY7t4"])
}

func TestCatalog_BaseBundleItemID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "price_base", testCatalog().BaseBundleItemID())
	assert.Empty(t, entitlement.Catalog{}.BaseBundleItemID())
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("loads valid document", func(t *testing.T) {
		t.Parallel()

		doc := `
items:
  price_base: base_bundle
  price_lunar: lunar_calendar
  price_draconic: draconic
`
		catalog, err := entitlement.YAMLSource{Reader: strings.NewReader(doc)}.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, catalog, 3)
		assert.Equal(t, entitlement.KeyBaseBundle, catalog["price_base"])
	})

	t.Run("rejects invalid yaml", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.YAMLSource{Reader: strings.NewReader(":\n  - not yaml")}.Load(context.Background())
		assert.ErrorIs(t, err, entitlement.ErrFailedToDecodeCatalog)
	})

	t.Run("rejects catalog without base bundle", func(t *testing.T) {
		t.Parallel()

		doc := "items:\n  price_lunar: lunar_calendar\n"
		_, err := entitlement.YAMLSource{Reader: strings.NewReader(doc)}.Load(context.Background())
		assert.ErrorIs(t, err, entitlement.ErrMissingBaseBundleEntry)
	})
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	catalog, err := entitlement.StaticSource(testCatalog()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCatalog(), catalog)

	_, err = entitlement.StaticSource{}.Load(context.Background())
	assert.ErrorIs(t, err, entitlement.ErrEmptyCatalog)
}

func TestRequiredFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path  string
		want  entitlement.Key
		gated bool
	}{
		{"/calendario/personal/2026", entitlement.KeyBaseBundle, true},
		{"/cartas/tropica", entitlement.KeyBaseBundle, true},
		{"/calendario/lunar", entitlement.KeyLunarCalendar, true},
		{"/astrogematria/interpretaciones/42", entitlement.KeyAstrogematria, true},
		{"/carta-electiva", entitlement.KeyElectiveChart, true},
		{"/cartas/draconica", entitlement.KeyDraconic, true},
		{"/calendario/general", "", false},
		{"/", "", false},
	}

	for _, tt := range tests {
		key, gated := entitlement.RequiredFor(tt.path)
		assert.Equal(t, tt.gated, gated, tt.path)
		assert.Equal(t, tt.want, key, tt.path)
	}
}
