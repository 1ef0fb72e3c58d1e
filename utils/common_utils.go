package utils

import (
	"net/url"
	"strings"

	"npcs-desk/constants"

	"github.com/gin-gonic/gin"
)

// ListParams are the search and sort controls of the jobs table.
type ListParams struct {
	Search string
	Column string
	Sort   string
}

func ConvertGinRequestToParams(c *gin.Context) ListParams {
	search, _ := url.QueryUnescape(c.Query(constants.ParamSearch))
	return ListParams{
		Search: strings.TrimSpace(search),
		Column: c.Query(constants.ParamColumn),
		Sort:   c.Query(constants.ParamSort),
	}
}

// IsTruthy reports whether a query flag such as confirm=true is set.
func IsTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
