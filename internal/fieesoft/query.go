package fieesoft

import (
	"net/url"
	"strconv"
)

// Query parameter names understood by GET /api/bienes.
const (
	ParamText      = "texto"
	ParamBrandName = "nombreMarca"
	ParamLocation  = "ubicacion"
	ParamStatus    = "estado"
	ParamPage      = "page"
	ParamSize      = "size"
)

// Defaults applied by the search tool when the caller omits page/size.
const (
	DefaultPage = 0
	DefaultSize = 50
)

// SearchQuery is a sparse set of inventory search filters. Nil fields are
// never sent. Text filters that are empty are treated as nil; Page and Size
// are sent whenever non-nil, including zero.
type SearchQuery struct {
	Text      *string
	BrandName *string
	Location  *string
	Status    *string
	Page      *int
	Size      *int
}

// Values builds the query string parameters for the search.
func (q SearchQuery) Values() url.Values {
	v := url.Values{}
	setText(v, ParamText, q.Text)
	setText(v, ParamBrandName, q.BrandName)
	setText(v, ParamLocation, q.Location)
	setText(v, ParamStatus, q.Status)
	if q.Page != nil {
		v.Set(ParamPage, strconv.Itoa(*q.Page))
	}
	if q.Size != nil {
		v.Set(ParamSize, strconv.Itoa(*q.Size))
	}
	return v
}

func setText(v url.Values, key string, val *string) {
	if val == nil || *val == "" {
		return
	}
	v.Set(key, *val)
}
