// Package i18n looks up user-visible default strings.
package i18n

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	LabelSavedWindow = "labelSavedWindow"
	LabelUnsaved     = "labelUnsaved"
	DecorUnsaved     = "decorUnsaved"
	LabelNoTitle     = "labelNoTitle"
	TooltipTabs      = "tooltipTabs"
)

var entries = map[language.Tag]map[string]string{
	language.English: {
		LabelSavedWindow: "Saved tabs",
		LabelUnsaved:     "Unsaved",
		DecorUnsaved:     " (Unsaved)",
		LabelNoTitle:     "(no title)",
	},
	language.German: {
		LabelSavedWindow: "Gespeicherte Tabs",
		LabelUnsaved:     "Nicht gespeichert",
		DecorUnsaved:     " (nicht gespeichert)",
		LabelNoTitle:     "(kein Titel)",
	},
}

// counted messages take the count as their first argument.
var counted = map[language.Tag]map[string]catalog.Message{
	language.English: {
		TooltipTabs: plural.Selectf(1, "%d", plural.One, "%d tab", plural.Other, "%d tabs"),
	},
	language.German: {
		TooltipTabs: plural.Selectf(1, "%d", plural.One, "%d Tab", plural.Other, "%d Tabs"),
	},
}

var cat = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range entries {
		for key, msg := range msgs {
			b.SetString(tag, key, msg)
		}
	}
	for tag, msgs := range counted {
		for key, msg := range msgs {
			b.Set(tag, key, msg)
		}
	}
	return b
}()

// Strings is a localized string lookup.
type Strings struct {
	p *message.Printer
}

// New returns the lookup for locale, e.g. "de" or "en-GB". Unknown locales
// fall back to English.
func New(locale string) *Strings {
	tag := language.English
	if parsed, err := language.Parse(locale); err == nil {
		base, _ := parsed.Base()
		for supported := range entries {
			if b, _ := supported.Base(); b == base {
				tag = supported
			}
		}
	}
	return &Strings{p: message.NewPrinter(tag, message.Catalog(cat))}
}

// T returns the message for key, formatted with args.
func (s *Strings) T(key string, args ...any) string {
	return s.p.Sprintf(key, args...)
}
