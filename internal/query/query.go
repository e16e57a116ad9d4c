// Package query turns user-selected criteria into a canonical request
// against the paginated interaction collection, and parses whatever the
// service sends back without ever failing the display path.
package query

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/hivetrace/hivectl/internal/api"
	"go.uber.org/zap"
)

// Sort directions accepted by the collection endpoint.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// CategoryAll is the sentinel meaning "no category filter".
const CategoryAll = "all"

const (
	DefaultLimit     = 20
	DefaultSortField = "timestamp"
)

// SortFields lists the record fields the collection endpoint sorts by.
var SortFields = []string{"timestamp", "ip_address", "path", "page_type", "category"}

// ValidSortField reports whether f is an accepted sort field.
func ValidSortField(f string) bool {
	for _, s := range SortFields {
		if s == f {
			return true
		}
	}
	return false
}

// Criteria selects a page of the interaction collection. The zero
// value is not valid; use Default.
type Criteria struct {
	Page      int
	Limit     int
	SortField string
	SortOrder string
	Filter    string
	Category  string
}

// Default returns the criteria the console starts from: first page,
// newest first, no filters.
func Default() Criteria {
	return Criteria{
		Page:      1,
		Limit:     DefaultLimit,
		SortField: DefaultSortField,
		SortOrder: OrderDesc,
		Category:  CategoryAll,
	}
}

// Encode serializes the criteria in canonical form. Key order is fixed
// so identical criteria always produce identical strings.
func (c Criteria) Encode() string {
	var b strings.Builder
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(c.Page))
	b.WriteString("&limit=")
	b.WriteString(strconv.Itoa(c.Limit))
	b.WriteString("&sort_field=")
	b.WriteString(url.QueryEscape(c.SortField))
	b.WriteString("&sort_order=")
	b.WriteString(url.QueryEscape(c.SortOrder))
	if c.Filter != "" {
		b.WriteString("&filter=")
		b.WriteString(url.QueryEscape(c.Filter))
	}
	if c.Category != CategoryAll {
		b.WriteString("&page_type=")
		b.WriteString(url.QueryEscape(c.Category))
	}
	return b.String()
}

// WithPage returns criteria on page n, clamped to at least 1.
func (c Criteria) WithPage(n int) Criteria {
	if n < 1 {
		n = 1
	}
	c.Page = n
	return c
}

// WithLimit changes the page size and returns to the first page.
func (c Criteria) WithLimit(limit int) Criteria {
	if limit < 1 {
		limit = DefaultLimit
	}
	c.Limit = limit
	c.Page = 1
	return c
}

// WithFilter changes the free-text filter and returns to the first
// page, so a narrower result set cannot strand the user past its end.
func (c Criteria) WithFilter(filter string) Criteria {
	c.Filter = filter
	c.Page = 1
	return c
}

// WithCategory changes the category filter and returns to the first page.
func (c Criteria) WithCategory(category string) Criteria {
	if category == "" {
		category = CategoryAll
	}
	c.Category = category
	c.Page = 1
	return c
}

// WithSort selects a sort field. Re-selecting the active field flips
// the order; a new field always starts descending, since newest-first
// is the useful default for an event stream. Page resets to 1.
func (c Criteria) WithSort(field string) Criteria {
	if field == c.SortField {
		if c.SortOrder == OrderAsc {
			c.SortOrder = OrderDesc
		} else {
			c.SortOrder = OrderAsc
		}
	} else {
		c.SortField = field
		c.SortOrder = OrderDesc
	}
	c.Page = 1
	return c
}

// PageResult is one page of the collection. Total is authoritative for
// page-bound computation.
type PageResult struct {
	Records []api.InteractionRecord
	Total   int
}

// LastPage returns the highest valid page number, never below 1.
func LastPage(total, limit int) int {
	if limit < 1 || total <= 0 {
		return 1
	}
	last := (total + limit - 1) / limit
	if last < 1 {
		return 1
	}
	return last
}

// ParseResult decodes a collection response defensively. Accepted
// shapes: an object with an interactions/records field and a
// total/count field; a bare array (total = length). Anything else
// degrades to an empty result with a logged anomaly; the display path
// must never crash on an unexpected but non-error response.
func ParseResult(raw []byte, logger *zap.Logger) PageResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	var obj struct {
		Interactions []api.InteractionRecord `json:"interactions"`
		Records      []api.InteractionRecord `json:"records"`
		Total        *int                    `json:"total"`
		Count        *int                    `json:"count"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		records := obj.Interactions
		if records == nil {
			records = obj.Records
		}
		if records != nil {
			total := len(records)
			if obj.Total != nil {
				total = *obj.Total
			} else if obj.Count != nil {
				total = *obj.Count
			}
			return PageResult{Records: records, Total: total}
		}
	}

	var arr []api.InteractionRecord
	if err := json.Unmarshal(raw, &arr); err == nil && arr != nil {
		return PageResult{Records: arr, Total: len(arr)}
	}

	logger.Warn("unexpected collection response shape", zap.Int("bytes", len(raw)))
	return PageResult{Records: []api.InteractionRecord{}, Total: 0}
}
