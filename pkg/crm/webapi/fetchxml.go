package webapi

import (
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/udssoftware/crmsize/pkg/errors"
)

type fetchQuery struct {
	XMLName      xml.Name    `xml:"fetch"`
	Version      string      `xml:"version,attr"`
	Mapping      string      `xml:"mapping,attr"`
	Page         int         `xml:"page,attr,omitempty"`
	Count        int         `xml:"count,attr,omitempty"`
	PagingCookie string      `xml:"paging-cookie,attr,omitempty"`
	Entity       fetchEntity `xml:"entity"`
}

type fetchEntity struct {
	Name       string           `xml:"name,attr"`
	Attributes []fetchAttribute `xml:"attribute"`
	Order      *fetchOrder      `xml:"order,omitempty"`
}

type fetchAttribute struct {
	Name string `xml:"name,attr"`
}

type fetchOrder struct {
	Attribute string `xml:"attribute,attr"`
}

// BuildFetchXML renders a paged FetchXML query. orderBy may be empty.
func BuildFetchXML(table string, columns []string, page, count int, cookie, orderBy string) (string, error) {
	q := fetchQuery{
		Version:      "1.0",
		Mapping:      "logical",
		Page:         page,
		Count:        count,
		PagingCookie: cookie,
		Entity:       fetchEntity{Name: table},
	}
	for _, c := range columns {
		q.Entity.Attributes = append(q.Entity.Attributes, fetchAttribute{Name: c})
	}
	if orderBy != "" {
		q.Entity.Order = &fetchOrder{Attribute: orderBy}
	}

	out, err := xml.Marshal(q)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to render FetchXML")
	}
	return string(out), nil
}

// pagingCookieAnnotation is the value of the fetchxmlpagingcookie annotation:
// <cookie pagenumber="2" pagingcookie="%253ccookie..." istracking="False" />
type pagingCookieAnnotation struct {
	PageNumber   int    `xml:"pagenumber,attr"`
	PagingCookie string `xml:"pagingcookie,attr"`
}

// ParsePagingCookie extracts the paging cookie to send with the next page
// from the response annotation. The inner cookie is URL encoded twice and is
// decoded without treating '+' as a space, so it goes back byte for byte.
func ParsePagingCookie(annotation string) (string, error) {
	if strings.TrimSpace(annotation) == "" {
		return "", nil
	}

	var a pagingCookieAnnotation
	if err := xml.Unmarshal([]byte(annotation), &a); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "malformed paging cookie annotation")
	}

	cookie := a.PagingCookie
	for i := 0; i < 2; i++ {
		decoded, err := url.PathUnescape(cookie)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "malformed paging cookie encoding")
		}
		cookie = decoded
	}
	return cookie, nil
}
