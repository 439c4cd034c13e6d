package decoded

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templateStrings = `<?xml version="1.0" encoding="utf-8"?>
<resources>
    <string name="action_settings">Settings</string>
    <string name="app_name">Template</string>
    <string name="app_name">Shadowed</string>
</resources>
`

func appNameEntries(t *testing.T, path string) []string {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	var texts []string
	for _, el := range doc.Root().SelectElements("string") {
		if el.SelectAttrValue("name", "") == AppNameKey {
			texts = append(texts, el.Text())
		}
	}
	return texts
}

func TestSetDisplayName_ReplacesFirstMatchOnly(t *testing.T) {
	path := writeTemp(t, "strings.xml", templateStrings)

	require.NoError(t, SetDisplayName(path, "My App"))

	assert.Equal(t, []string{"My App", "Shadowed"}, appNameEntries(t, path))
}

func TestSetDisplayName_AppendsWhenAbsent(t *testing.T) {
	path := writeTemp(t, "strings.xml", `<resources><string name="other">x</string></resources>`)

	require.NoError(t, SetDisplayName(path, "My App"))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	children := doc.Root().ChildElements()
	require.Len(t, children, 2)
	last := children[1]
	assert.Equal(t, AppNameKey, last.SelectAttrValue("name", ""))
	assert.Equal(t, "My App", last.Text())
}

func TestSetDisplayName_TwiceYieldsSingleEntry(t *testing.T) {
	path := writeTemp(t, "strings.xml", `<resources/>`)

	require.NoError(t, SetDisplayName(path, "First"))
	require.NoError(t, SetDisplayName(path, "Second"))

	assert.Equal(t, []string{"Second"}, appNameEntries(t, path))
}

func TestSetDisplayName_DropsInlineMarkup(t *testing.T) {
	path := writeTemp(t, "strings.xml", `<resources xmlns:xliff="urn:oasis:names:tc:xliff:document:1.2"><string name="app_name">Hi <xliff:g id="n">%s</xliff:g></string></resources>`)

	require.NoError(t, SetDisplayName(path, "Plain"))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	el := doc.Root().SelectElement("string")
	assert.Empty(t, el.ChildElements())
	assert.Equal(t, "Plain", el.Text())
}

func TestSetDisplayName_MissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.xml")

	require.NoError(t, SetDisplayName(path, "My App"))

	assert.NoFileExists(t, path)
}

func TestSetDisplayName_Malformed(t *testing.T) {
	path := writeTemp(t, "strings.xml", `<resources><string name=app_name>x</string></resources>`)

	err := SetDisplayName(path, "My App")
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

func TestSetDisplayName_EscapesApostrophes(t *testing.T) {
	path := writeTemp(t, "strings.xml", `<resources/>`)

	require.NoError(t, SetDisplayName(path, "Bob's <Shop> & Co"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `Bob\'s &lt;Shop&gt; &amp; Co`)
}

func TestEscapeResourceString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My App", "My App"},
		{"Bob's", `Bob\'s`},
		{`say "hi"`, `say \"hi\"`},
		{`C:\x`, `C:\\x`},
		{"@home", `\@home`},
		{"?what", `\?what`},
		{"a@b?", "a@b?"},
		{"two\nlines", `two\nlines`},
		{"Ünïcödé 应用", "Ünïcödé 应用"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeResourceString(tt.in))
		})
	}
}
