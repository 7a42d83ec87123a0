package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openground/backend/internal/devtools/scan"
)

const form = `import { useTranslations } from "next-intl";

/*
 * <p>Commented out</p>
 */
export function SearchForm({ count }) {
  const t = useTranslations("search");
  // <span>Old label</span>
  return (
    <form>
      <h1>{t("title")}</h1>
      <p>Hello {count}</p>
      <input placeholder="Search listings" aria-label={t("query")} />
      <span>{count} / 100</span>
      <img alt="" src="/logo.svg" />
      <small>OpenGround</small>
      <p>Legacy copy</p> {/* i18n-ignore */}
      <button title="Submit search">{t("go")}</button>
    </form>
  );
}
`

func TestChecker_Check(t *testing.T) {
	c := New([]string{"openground"})
	findings, err := c.Check("components/search.tsx", []byte(form))
	require.NoError(t, err)

	got := make([]string, 0, len(findings))
	for _, f := range findings {
		got = append(got, f.String())
	}
	want := []string{
		`components/search.tsx:12: [i18n-text] hardcoded text "Hello", use t()`,
		`components/search.tsx:13: [i18n-attribute] hardcoded placeholder "Search listings", use t()`,
		`components/search.tsx:18: [i18n-attribute] hardcoded title "Submit search", use t()`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

const listingGrid = `import { useState } from "react";

export function ListingGrid({ items }: { items: Item[] }) {
  const [query, setQuery] = useState<string>("");
  const empty = items.length < 1 && query.length > 0;
  if (empty) {
    return (
      <p className="muted">
        No listings found
      </p>
    );
  }
  return (
    <ul
      data-title="grid"
      aria-label="Listing results"
    >
      {items.map((item) => (
        <li key={item.id} onClick={() => item.price > 0 && open(item)}>
          <span>{item.title}</span>
          <em>
            Sold
            out
          </em>
        </li>
      ))}
    </ul>
  );
}
`

func TestChecker_MultiLineJSX(t *testing.T) {
	findings, err := New(nil).Check("ListingGrid.tsx", []byte(listingGrid))
	require.NoError(t, err)

	got := make([]string, 0, len(findings))
	for _, f := range findings {
		got = append(got, f.String())
	}
	want := []string{
		`ListingGrid.tsx:9: [i18n-text] hardcoded text "No listings found", use t()`,
		`ListingGrid.tsx:16: [i18n-attribute] hardcoded aria-label "Listing results", use t()`,
		`ListingGrid.tsx:22: [i18n-text] hardcoded text "Sold out", use t()`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestChecker_TextAfterElementIsCode(t *testing.T) {
	src := "const badge = ok ? <b>{t(\"ok\")}</b> : null;\nconst label = count > 1 ? plural : single;\n"
	findings, err := New(nil).Check("badge.tsx", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCheckLocales(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "messages", "en.json"),
		`{"nav": {"home": "Home", "saved": "Saved"}, "search": {"title": "Search"}, "logout": "Log out"}`)
	writeFile(t, filepath.Join(root, "messages", "fr.json"),
		`{"nav": {"home": "Accueil"}, "search": {"title": "Recherche"}, "logout": "Déconnexion"}`)
	writeFile(t, filepath.Join(root, "messages", "de.json"),
		`{"nav": {"home": "Start", "saved": "Gemerkt"}, "search": {"title": "Suche"}, "logout": "Abmelden", "extra": "x"}`)

	findings, err := CheckLocales(root, scan.DefaultConfig().I18n)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, `messages/fr.json:1: [i18n-missing-key] missing key "nav.saved" (present in en.json)`, findings[0].String())
}

func TestCheckLocales_MissingDirAndBase(t *testing.T) {
	root := t.TempDir()
	findings, err := CheckLocales(root, scan.DefaultConfig().I18n)
	require.NoError(t, err)
	assert.Empty(t, findings)

	writeFile(t, filepath.Join(root, "messages", "fr.json"), `{}`)
	_, err = CheckLocales(root, scan.DefaultConfig().I18n)
	assert.Error(t, err)
}
