package i18n

import "testing"

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
}

func TestDetectLanguagePriorityAndNormalization(t *testing.T) {
	t.Run("LANGUAGE has highest priority", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "ru_RU.UTF-8:en_US")
		t.Setenv("LC_ALL", "de_DE.UTF-8")

		if got := detectLanguage(); got != "ru_RU" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "ru_RU")
		}
	})

	t.Run("C and POSIX are skipped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "C")
		t.Setenv("LC_ALL", "POSIX")
		t.Setenv("LC_MESSAGES", "fr_FR.UTF-8")

		if got := detectLanguage(); got != "fr_FR" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "fr_FR")
		}
	})

	t.Run("falls back to en", func(t *testing.T) {
		clearLocaleEnv(t)
		if got := detectLanguage(); got != "en" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "en")
		}
	})
}

func TestTAndNFallbackWhenUninitialized(t *testing.T) {
	old := po
	po = nil
	t.Cleanup(func() { po = old })

	if got := T("No translations found"); got != "No translations found" {
		t.Fatalf("T fallback = %q", got)
	}
	if got := N("%d key", "%d keys", 1); got != "%d key" {
		t.Fatalf("N singular fallback = %q", got)
	}
	if got := N("%d key", "%d keys", 2); got != "%d keys" {
		t.Fatalf("N plural fallback = %q", got)
	}
}

func TestEmbeddedCatalogs(t *testing.T) {
	old, oldLang := po, lang
	t.Cleanup(func() { po, lang = old, oldLang })

	Init("ru")
	if Language() != "ru" {
		t.Fatalf("Language() = %q, want ru", Language())
	}
	if got := T("No translations found"); got != "Переводы не найдены" {
		t.Fatalf("T(ru) = %q", got)
	}

	Init("de")
	if got := T("No translations found"); got != "Keine Übersetzungen gefunden" {
		t.Fatalf("T(de) = %q", got)
	}

	Init("xx")
	if got := T("No translations found"); got != "No translations found" {
		t.Fatalf("T(unknown language) = %q", got)
	}
}
