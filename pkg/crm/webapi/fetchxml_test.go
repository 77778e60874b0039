package webapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFetchXML(t *testing.T) {
	got, err := BuildFetchXML("account", []string{"name"}, 2, 250, `<cookie page="1"/>`, "")
	require.NoError(t, err)
	assert.Equal(t,
		`<fetch version="1.0" mapping="logical" page="2" count="250" paging-cookie="&lt;cookie page=&#34;1&#34;/&gt;"><entity name="account"><attribute name="name"></attribute></entity></fetch>`,
		got)
}

func TestParsePagingCookie(t *testing.T) {
	annotation := `<cookie pagenumber="2" pagingcookie="%253ccookie%2520page%253d%25221%2522%253e%253c%252fcookie%253e" istracking="False" />`

	got, err := ParsePagingCookie(annotation)
	require.NoError(t, err)
	assert.Equal(t, `<cookie page="1"></cookie>`, got)

	inner := `<cookie page="1"><name last="a+b" first="x y" /></cookie>`
	annotation = `<cookie pagenumber="2" pagingcookie="` + url.PathEscape(url.PathEscape(inner)) + `" istracking="False" />`
	got, err = ParsePagingCookie(annotation)
	require.NoError(t, err)
	assert.Equal(t, inner, got)

	got, err = ParsePagingCookie("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParsePagingCookie("<cookie")
	assert.Error(t, err)
}
