package webapi

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/udssoftware/crmsize/pkg/crm"
)

type label struct {
	Label        string `json:"Label"`
	LanguageCode int    `json:"LanguageCode"`
}

type localizedName struct {
	LocalizedLabels    []label `json:"LocalizedLabels"`
	UserLocalizedLabel *label  `json:"UserLocalizedLabel"`
}

type attributeDefinition struct {
	LogicalName   string `json:"LogicalName"`
	SchemaName    string `json:"SchemaName"`
	AttributeType string `json:"AttributeType"`
	IsRetrievable *bool  `json:"IsRetrievable"`
	MaxLength     *int   `json:"MaxLength"`
}

type entityDefinition struct {
	LogicalName        string                `json:"LogicalName"`
	EntitySetName      string                `json:"EntitySetName"`
	PrimaryIDAttribute string                `json:"PrimaryIdAttribute"`
	DisplayName        localizedName         `json:"DisplayName"`
	Attributes         []attributeDefinition `json:"Attributes"`
}

type collection[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// FetchMetadata retrieves a table's columns and display name. String and
// memo lengths live on derived metadata types and are read through casts.
func (c *Client) FetchMetadata(ctx context.Context, table string) (*crm.Table, error) {
	var def entityDefinition
	err := c.get(ctx, "metadata", entityKey(table), url.Values{
		"$select": {"LogicalName,EntitySetName,PrimaryIdAttribute,DisplayName"},
		"$expand": {"Attributes($select=LogicalName,SchemaName,AttributeType,IsRetrievable)"},
	}, nil, &def)
	if err != nil {
		return nil, err
	}

	lengths := make(map[string]int)
	for _, cast := range []string{"StringAttributeMetadata", "MemoAttributeMetadata"} {
		var attrs collection[attributeDefinition]
		err := c.get(ctx, "metadata", entityKey(table)+"/Attributes/Microsoft.Dynamics.CRM."+cast, url.Values{
			"$select": {"LogicalName,MaxLength"},
		}, nil, &attrs)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs.Value {
			if a.MaxLength != nil {
				lengths[a.LogicalName] = *a.MaxLength
			}
		}
	}

	result := &crm.Table{
		LogicalName:        def.LogicalName,
		EntitySetName:      def.EntitySetName,
		PrimaryIDAttribute: def.PrimaryIDAttribute,
		DisplayName:        c.displayName(def.DisplayName),
		Columns:            make([]crm.Column, 0, len(def.Attributes)),
	}
	for _, a := range def.Attributes {
		col := crm.Column{
			LogicalName:   a.LogicalName,
			SchemaName:    a.SchemaName,
			Type:          crm.AttributeType(a.AttributeType),
			IsRetrievable: a.IsRetrievable != nil && *a.IsRetrievable,
		}
		if n, ok := lengths[a.LogicalName]; ok && col.Type.HasMaxLength() {
			col.MaxLength = &n
		}
		result.Columns = append(result.Columns, col)
	}

	c.remember(table, tableRef{entitySet: def.EntitySetName, primaryID: def.PrimaryIDAttribute})
	c.logger.Debug("fetched table metadata",
		zap.String("table", table),
		zap.String("entity_set", def.EntitySetName),
		zap.Int("columns", len(result.Columns)))

	return result, nil
}

// ListTables enumerates the organization's tables that can be queried
func (c *Client) ListTables(ctx context.Context) ([]crm.TableInfo, error) {
	var infos []crm.TableInfo

	path := "EntityDefinitions"
	query := url.Values{"$select": {"LogicalName,EntitySetName,PrimaryIdAttribute,DisplayName"}}
	for path != "" {
		var page collection[entityDefinition]
		if err := c.get(ctx, "tables", path, query, nil, &page); err != nil {
			return nil, err
		}

		for _, def := range page.Value {
			if def.EntitySetName == "" {
				continue
			}
			c.remember(def.LogicalName, tableRef{entitySet: def.EntitySetName, primaryID: def.PrimaryIDAttribute})
			infos = append(infos, crm.TableInfo{
				LogicalName:   def.LogicalName,
				EntitySetName: def.EntitySetName,
				DisplayName:   c.displayName(def.DisplayName),
			})
		}

		// nextLink is absolute and already carries the query
		path, query = page.NextLink, nil
	}

	return infos, nil
}

func (c *Client) displayName(n localizedName) string {
	if n.UserLocalizedLabel != nil {
		return n.UserLocalizedLabel.Label
	}
	if c.language != 0 {
		for _, l := range n.LocalizedLabels {
			if l.LanguageCode == c.language {
				return l.Label
			}
		}
	}
	return ""
}

// resolve returns the entity set of a table, reading it once if needed
func (c *Client) resolve(ctx context.Context, table string) (tableRef, error) {
	if ref, ok := c.lookup(table); ok {
		return ref, nil
	}

	var def entityDefinition
	err := c.get(ctx, "metadata", entityKey(table), url.Values{
		"$select": {"LogicalName,EntitySetName,PrimaryIdAttribute"},
	}, nil, &def)
	if err != nil {
		return tableRef{}, err
	}

	ref := tableRef{entitySet: def.EntitySetName, primaryID: def.PrimaryIDAttribute}
	c.remember(table, ref)
	return ref, nil
}
