package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/somalabs/darasa/core"
)

var orderingParam = "ordering"

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPagination reads page/limit query params and clamps them.
func bindPagination(ctx echo.Context) core.Pagination {
	page, _ := strconv.Atoi(ctx.QueryParam("page"))
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	p := core.Pagination{Page: page, Limit: limit}
	p.Clean(defaultPageLimit, maxPageLimit)
	return p
}

// PagedResponse is the envelope for paginated list endpoints.
type PagedResponse struct {
	Results interface{}   `json:"results"`
	Meta    core.PageMeta `json:"meta"`
}
