package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var defaultLocalesFS embed.FS

type Translator struct {
	translations map[string]map[string]string  // lang -> key -> value
	templates    map[string]*template.Template // "lang:key" -> parsed template
	defaultLang  string
	mu           sync.RWMutex
}

// NewTranslator creates a new Translator using the embedded locales.
func NewTranslator(defaultLang string) (*Translator, error) {
	subFS, err := fs.Sub(defaultLocalesFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded locales: %w", err)
	}
	return NewTranslatorFromFS(subFS, defaultLang)
}

// NewTranslatorFromFS creates a new Translator from a given filesystem.
// This is useful for testing or loading locales from a custom location.
func NewTranslatorFromFS(localesFS fs.FS, defaultLang string) (*Translator, error) {
	t := &Translator{
		translations: make(map[string]map[string]string),
		templates:    make(map[string]*template.Template),
		defaultLang:  defaultLang,
	}

	entries, err := fs.ReadDir(localesFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales directory: %w", err)
	}

	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		ext := filepath.Ext(f.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		lang := f.Name()[:len(f.Name())-len(ext)]
		content, err := fs.ReadFile(localesFS, f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", f.Name(), err)
		}

		var data map[string]interface{}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, fmt.Errorf("failed to parse locale file %s: %w", f.Name(), err)
		}

		flatData := make(map[string]string)
		flatten("", data, flatData)
		t.translations[lang] = flatData
	}

	if _, ok := t.translations[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}

	return t, nil
}

func flatten(prefix string, src map[string]interface{}, dest map[string]string) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			flatten(key, child, dest)
		case string:
			dest[key] = child
		default:
			dest[key] = fmt.Sprintf("%v", v)
		}
	}
}

// lookup resolves key in lang, falling back to the default language.
// The returned lang is the one the value was found in.
func (t *Translator) lookup(lang, key string) (string, string, bool) {
	if lang == "" {
		lang = t.defaultLang
	}
	if tr, ok := t.translations[lang]; ok {
		if v, ok := tr[key]; ok {
			return v, lang, true
		}
	}
	if lang != t.defaultLang {
		if tr, ok := t.translations[t.defaultLang]; ok {
			if v, ok := tr[key]; ok {
				return v, t.defaultLang, true
			}
		}
	}
	return key, lang, false
}

func (t *Translator) Get(lang, key string, args ...interface{}) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	val, _, _ := t.lookup(lang, key)
	if len(args) > 0 {
		return fmt.Sprintf(val, args...)
	}
	return val
}

// GetTemplate renders the value of key as a text/template with data.
// Parsed templates are cached per language and key.
func (t *Translator) GetTemplate(lang, key string, data any) (string, error) {
	t.mu.RLock()
	val, foundLang, ok := t.lookup(lang, key)
	cacheKey := foundLang + ":" + key
	tmpl := t.templates[cacheKey]
	t.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("translation %q not found", key)
	}

	if tmpl == nil {
		parsed, err := template.New(key).Option("missingkey=error").Parse(val)
		if err != nil {
			return "", fmt.Errorf("failed to parse template %q: %w", key, err)
		}
		t.mu.Lock()
		t.templates[cacheKey] = parsed
		t.mu.Unlock()
		tmpl = parsed
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", key, err)
	}
	return buf.String(), nil
}

// Languages returns the loaded language codes.
func (t *Translator) Languages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	langs := make([]string, 0, len(t.translations))
	for lang := range t.translations {
		langs = append(langs, lang)
	}
	return langs
}
