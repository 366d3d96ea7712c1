package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo Bar/CamelCase Page", "foo_bar:camel_case_page"},
		{"Main Page", "main_page"},
		{"Café Crème", "cafe_creme"},
		{"Hello,  World!!", "hello_world"},
		{"  Leading and trailing  ", "leading_and_trailing"},
		{"Help:Contents", "help:contents"},
		{"File:Diagram.PNG", "file:diagram.png"},
		{"Version2Release", "version2_release"},
		{"a__b___c", "a_b_c"},
		{"Foo /Bar", "foo:bar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "NormalizeName(%q)", tt.in)
	}
}

func TestNormalizeName_Shape(t *testing.T) {
	got := NormalizeName("Foo Bar/CamelCase Page")
	assert.Equal(t, strings.ToLower(got), got)
	assert.NotContains(t, got, "__")
	assert.False(t, strings.HasPrefix(got, "_"))
	assert.False(t, strings.HasSuffix(got, "_"))
	assert.Contains(t, got, ":")
}

func TestCleanUser(t *testing.T) {
	assert.Equal(t, "john_smith", CleanUser("John Smith"))
	assert.Equal(t, "a_b", CleanUser("A:B"))
}

func TestHeadingID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1. Introduction", "Introduction"},
		{"123", "section123"},
		{"Getting Started", "Getting_Started"},
		{"2.1 Setup: Linux", "Setup_Linux"},
		{"--", "section"},
		{"1.2.3", "section123"},
	}
	for _, tt := range tests {
		got := HeadingID(tt.in)
		assert.Equal(t, tt.want, got, "HeadingID(%q)", tt.in)
		assert.NotEmpty(t, got)
	}
}

func TestPagePath(t *testing.T) {
	dirs, base := PagePath("foo:bar:baz")
	assert.Equal(t, []string{"foo", "bar"}, dirs)
	assert.Equal(t, "baz", base)

	dirs, base = PagePath("start")
	assert.Empty(t, dirs)
	assert.Equal(t, "start", base)
}

func TestResolver_FileNamespace(t *testing.T) {
	r := NewResolver("File", []string{"Image", "Datei"}, "User talk")

	assert.True(t, r.IsFileNamespace("Image:Foo.png"))
	assert.True(t, r.IsFileNamespace("image:Foo.png"))
	assert.True(t, r.IsFileNamespace("DATEI:Foo.png"))
	assert.True(t, r.IsFileNamespace("File:Foo.png"))
	assert.False(t, r.IsFileNamespace("Help:Foo"))
	assert.False(t, r.IsFileNamespace("Image"))

	assert.Equal(t, "File:Foo.png", r.CanonicalizeFileNamespace("Image:Foo.png"))
	assert.Equal(t, "File:Bar.jpg", r.CanonicalizeFileNamespace("datei:Bar.jpg"))
	assert.Equal(t, "Help:Foo", r.CanonicalizeFileNamespace("Help:Foo"))

	assert.True(t, r.IsNamespace("User_talk:Bob"))
	assert.True(t, r.IsNamespace("Image:X.png"))
	assert.False(t, r.IsNamespace("Unknown:Thing"))
}

func TestResolver_DefaultCanonicalName(t *testing.T) {
	r := NewResolver("", nil)
	assert.Equal(t, DefaultFileNamespace, r.FileNamespace())
	assert.True(t, r.IsFileNamespace("file:x.png"))
	assert.True(t, DefaultResolver().IsCategory("Category:Widgets"))
}
