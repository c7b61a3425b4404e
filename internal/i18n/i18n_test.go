package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLocales(t *testing.T) {
	require.NoError(t, Initialize())

	assert.ElementsMatch(t, []string{"en", "es"}, GetSupportedLanguages())
	assert.Equal(t, "Product not found", T("en", "product.not_found"))
	assert.Equal(t, "Producto no encontrado", T("es", "product.not_found"))
	assert.Equal(t, "Invalid product ID", T("en", KeyInvalidID, "product"))

	// Unknown language falls back to English, unknown key to itself
	assert.Equal(t, "Order not found", T("fr", "order.not_found"))
	assert.Equal(t, "missing.key", T("es", "missing.key"))
}

func TestLoadTranslations(t *testing.T) {
	i := &I18n{translations: map[string]map[string]string{}, defaultLang: "en"}
	fsys := fstest.MapFS{
		"l/en.json": {Data: []byte(`{"greeting": "Hello %s"}`)},
		"l/es.json": {Data: []byte(`{"greeting": "Hola %s"}`)},
	}
	require.NoError(t, i.LoadTranslations(fsys, "l"))
	assert.Equal(t, "Hola Ana", i.T("es", "greeting", "Ana"))

	bad := fstest.MapFS{"l/en.json": {Data: []byte(`{`)}}
	assert.Error(t, i.LoadTranslations(bad, "l"))
}

func TestLanguageKeysMatch(t *testing.T) {
	require.NoError(t, Initialize())
	for key := range instance.translations["en"] {
		_, ok := instance.translations["es"][key]
		assert.True(t, ok, key)
	}
}
