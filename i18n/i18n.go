// Package i18n localizes ngxkit's own messages.
//
// It wraps the gotext library with T() and N() lookups over gettext
// catalogs embedded in the binary (locales/{lang}/LC_MESSAGES/ngxkit.po).
// Format strings are translated before formatting:
//
//	logInfo(i18n.T("Dictionary: %s"), path)
//	logInfo(i18n.N("%d key", "%d keys", n), n)
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name for ngxkit.
const domain = "ngxkit"

var (
	po   *gotext.Locale
	lang = "en"
)

// Init loads the catalog for lang, or for the language detected from
// LANGUAGE, LC_ALL, LC_MESSAGES and LANG when lang is empty. Call it once
// at startup before any T() or N() call.
func Init(language string) {
	if language == "" {
		language = detectLanguage()
	}
	lang = language

	po = gotext.NewLocaleFSWithPath(language, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the language passed to Init.
func Language() string {
	return lang
}

// T translates a string, returning msgid itself when there is no
// translation.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a string with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// detectLanguage follows GNU gettext: LANGUAGE > LC_ALL > LC_MESSAGES > LANG.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// "ru_RU.UTF-8" -> "ru_RU"
		val, _, _ = strings.Cut(val, ".")
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return "en"
}
