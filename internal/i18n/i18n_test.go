package i18n

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var testLocalesEmbed embed.FS

// testLocales is the sub-filesystem rooted at locales/
var testLocales, _ = fs.Sub(testLocalesEmbed, "locales")

func loadKeys(t *testing.T, name string) []string {
	t.Helper()
	data, err := fs.ReadFile(testLocalesEmbed, "locales/"+name)
	require.NoError(t, err, "failed to read %s", name)

	var m map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &m), "failed to parse %s", name)

	keys := extractKeys(m, "")
	sort.Strings(keys)
	return keys
}

func TestLocaleKeysSynchronized(t *testing.T) {
	idKeys := loadKeys(t, "id.yaml")
	enKeys := loadKeys(t, "en.yaml")

	assert.Equal(t, idKeys, enKeys, "Locale files should have identical key structure")
}

func TestGet(t *testing.T) {
	tr, err := NewTranslatorFromFS(testLocales, "id")
	require.NoError(t, err)

	tests := []struct {
		name     string
		lang     string
		key      string
		args     []interface{}
		expected string
	}{
		{
			name:     "existing key in id",
			lang:     "id",
			key:      "webhook.missing_file_token",
			expected: "file_token wajib dikirim dari Lark.",
		},
		{
			name:     "existing key in en",
			lang:     "en",
			key:      "webhook.missing_file_token",
			expected: "file_token must be sent from Lark.",
		},
		{
			name:     "fallback to default lang",
			lang:     "fr",
			key:      "analysis.insufficient_text",
			expected: "Dokumen tidak memiliki cukup teks untuk dianalisis (mungkin kosong atau hanya gambar).",
		},
		{
			name:     "missing key returns key",
			lang:     "id",
			key:      "nonexistent.key",
			expected: "nonexistent.key",
		},
		{
			name:     "empty lang uses default",
			lang:     "",
			key:      "server.running",
			expected: "Rara AI Lark backend is running.",
		},
		{
			name:     "format args",
			lang:     "id",
			key:      "server.error",
			args:     []interface{}{"timeout"},
			expected: "Terjadi error di server Rara AI. Detail: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tr.Get(tt.lang, tt.key, tt.args...)
			assert.Equal(t, tt.expected, result)
		})
	}
}

type promptData struct {
	Title      string
	DocType    string
	Note       string
	Attachment string
	Text       string
}

func TestGetTemplate_UserPrompt(t *testing.T) {
	tr, err := NewTranslator("id")
	require.NoError(t, err)

	t.Run("with metadata", func(t *testing.T) {
		out, err := tr.GetTemplate("id", "prompt.user", promptData{
			Title: "Perjanjian Sewa",
			Note:  "tolong cek pasal 3",
			Text:  "Isi dokumen",
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "=== INFORMASI DOKUMEN ==="))
		assert.Contains(t, out, "Judul: Perjanjian Sewa\n")
		assert.Contains(t, out, "Pesan user: tolong cek pasal 3\n")
		assert.NotContains(t, out, "Jenis:")
		assert.Contains(t, out, "=== TEKS DOKUMEN ===\nIsi dokumen\n")
	})

	t.Run("text only", func(t *testing.T) {
		out, err := tr.GetTemplate("en", "prompt.user", promptData{Text: "Body"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "=== DOCUMENT TEXT ===\nBody\n"))
		assert.Contains(t, out, "headings A, B, C, D, E")
	})
}

func TestGetTemplate_Errors(t *testing.T) {
	fsys := fstest.MapFS{
		"id.yaml": {Data: []byte("broken: \"{{ .Missing \"\nfield: \"{{ .Nope }}\"\n")},
	}
	tr, err := NewTranslatorFromFS(fsys, "id")
	require.NoError(t, err)

	_, err = tr.GetTemplate("id", "absent", nil)
	assert.ErrorContains(t, err, "not found")

	_, err = tr.GetTemplate("id", "broken", nil)
	assert.ErrorContains(t, err, "failed to parse")

	_, err = tr.GetTemplate("id", "field", map[string]string{})
	assert.ErrorContains(t, err, "failed to render")
}

func TestNewTranslatorFromFS_UnknownDefault(t *testing.T) {
	_, err := NewTranslatorFromFS(testLocales, "xx")
	assert.Error(t, err)
}

func TestLanguages(t *testing.T) {
	tr, err := NewTranslator("id")
	require.NoError(t, err)
	langs := tr.Languages()
	sort.Strings(langs)
	assert.Equal(t, []string{"en", "id"}, langs)
}

// extractKeys recursively extracts all keys from a nested map, using dot notation.
func extractKeys(m map[string]interface{}, prefix string) []string {
	var keys []string
	for k, v := range m {
		fullKey := k
		if prefix != "" {
			fullKey = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]interface{}:
			keys = append(keys, extractKeys(val, fullKey)...)
		default:
			keys = append(keys, fullKey)
		}
	}
	return keys
}
