package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWrapsBareText(t *testing.T) {
	got := Normalize("hello world")
	assert.Equal(t, "<p>hello world</p>", got)
}

func TestNormalizeWrapsInlineRun(t *testing.T) {
	got := Normalize(`see <a href="https://example.com">the docs</a> for more`)
	assert.Equal(t, `<p>see <a href="https://example.com">the docs</a> for more</p>`, got)
}

func TestNormalizeRemovesEmptyElements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty paragraph", "<p></p><p>kept</p>", "<p>kept</p>"},
		{"whitespace only", "<p>  \n\t </p>", ""},
		{"nested empty", "<div><span></span></div>", ""},
		{"empty span inline", "<p>a<span></span>b</p>", "<p>ab</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeKeepsImagesAndBreaks(t *testing.T) {
	got := Normalize(`<p><img src="diagram.png"/></p>`)
	assert.Equal(t, `<p><img src="diagram.png"/></p>`, got)

	got = Normalize("<p>a<br/>b</p>")
	assert.Equal(t, "<p>a<br/>b</p>", got)
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	got := Normalize("<p>  hello \n\n   world  </p>")
	assert.Equal(t, "<p>hello world</p>", got)
}

func TestNormalizePreservesInlineSpacing(t *testing.T) {
	got := Normalize("<p>go <em>fast</em> now</p>")
	assert.Equal(t, "<p>go <em>fast</em> now</p>", got)
}

func TestNormalizeStripsNoiseAttributes(t *testing.T) {
	got := Normalize(`<p class="intercom-block" id="x" data-id="7">text</p>`)
	assert.Equal(t, "<p>text</p>", got)

	got = Normalize(`<a href="https://example.com" class="btn">link</a>`)
	assert.Equal(t, `<p><a href="https://example.com">link</a></p>`, got)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"bare text",
		"<p>  spaced  </p>",
		`<h2>Title</h2>plain tail <em>emphasis</em>`,
		`<p>a <strong>b</strong> c</p><div></div>`,
		`<ul><li>one</li><li>two</li></ul>`,
		`<p><img src="x.png"/></p><p></p>`,
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   \n  "))
}
