package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator holds the messages of one language.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator reads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T returns the message for key, formatted with args. Unknown keys come back as-is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Catalog picks a Translator by the user's language code and falls back to the
// default language for anything it does not know.
type Catalog struct {
	def    *Translator
	byLang map[string]*Translator
}

// NewCatalog loads every locales/*.yaml in fsys. defaultLang must be present.
func NewCatalog(fsys fs.FS, defaultLang string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{byLang: map[string]*Translator{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(name, ".yaml")
		t, err := NewTranslator(fsys, lang)
		if err != nil {
			return nil, err
		}
		c.byLang[lang] = t
	}
	def, ok := c.byLang[defaultLang]
	if !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}
	c.def = def
	return c, nil
}

// For resolves an IETF tag such as "vi" or "en-US".
func (c *Catalog) For(lang string) *Translator {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if t, ok := c.byLang[lang]; ok {
		return t
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if t, ok := c.byLang[lang[:i]]; ok {
			return t
		}
	}
	return c.def
}

// T translates key for lang, falling back to the default language and then to key.
func (c *Catalog) T(lang, key string, args ...interface{}) string {
	t := c.For(lang)
	if _, ok := t.translations[key]; !ok && t != c.def {
		return c.def.T(key, args...)
	}
	return t.T(key, args...)
}

func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.byLang))
	for l := range c.byLang {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
