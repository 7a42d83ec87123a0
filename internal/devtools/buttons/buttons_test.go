package buttons

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openground/backend/internal/devtools/scan"
)

const page = `import { Button } from "@/components/ui/button";

export function Actions({ onSave }) {
  return (
    <div>
      <Button variant="primary" onClick={() => onSave()}>Save</Button>
      <Button
        onClick={() => setOpen(false)}
        variant={"danger"}
      >
        Delete
      </Button>
      <Button variant="outline">Cancel</Button>
      <Button variant="fancy">Wow</Button>
      <Button>Plain</Button>
      <button className="btn btn-primary">Old</button>
      <button type="submit">Native</button>
    </div>
  );
}
`

func TestChecker_Check(t *testing.T) {
	c := New(nil)
	findings, err := c.Check("app/actions.tsx", []byte(page))
	require.NoError(t, err)

	got := make([]string, 0, len(findings))
	for _, f := range findings {
		got = append(got, f.String())
	}
	want := []string{
		`app/actions.tsx:6: [button-variant] legacy variant "primary", use "default"`,
		`app/actions.tsx:9: [button-variant] legacy variant "danger", use "destructive"`,
		`app/actions.tsx:14: [button-unknown-variant] unknown variant "fancy", expected one of [default destructive outline secondary ghost link]`,
		`app/actions.tsx:16: [raw-button] raw <button> styled with "btn" classes, use <Button>`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, findings[0].Fixable)
	assert.False(t, findings[2].Fixable)
}

func TestChecker_Fix(t *testing.T) {
	c := New(map[string]string{"fancy": "secondary"})
	out, n := c.Fix([]byte(page))
	assert.Equal(t, 3, n)

	want := strings.NewReplacer(
		`variant="primary"`, `variant="default"`,
		`variant={"danger"}`, `variant={"destructive"}`,
		`variant="fancy"`, `variant="secondary"`,
	).Replace(page)
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("codemod output mismatch (-want +got):\n%s", diff)
	}

	findings, err := c.Check("x.tsx", out)
	require.NoError(t, err)
	for _, f := range findings {
		assert.NotEqual(t, RuleLegacyVariant, f.Rule)
	}

	again, n := c.Fix(out)
	assert.Zero(t, n)
	assert.Equal(t, string(out), string(again))
}

func TestChecker_PrefixedAttributesIgnored(t *testing.T) {
	src := `<Button data-variant="primary" variant="ghost">Menu</Button>
<Button data-variant="danger">Close</Button>
<button data-className="btn" type="button">x</button>
`
	c := New(nil)
	findings, err := c.Check("menu.tsx", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, findings)

	out, n := c.Fix([]byte(src))
	assert.Zero(t, n)
	assert.Equal(t, src, string(out))
}

func TestChecker_Match(t *testing.T) {
	c := New(nil)
	assert.True(t, c.Match("a/b.tsx"))
	assert.True(t, c.Match("a/b.JSX"))
	assert.False(t, c.Match("a/b.html"))
	assert.Implements(t, (*scan.Checker)(nil), c)
}
