package httpx

import (
	"net/http"
	"strconv"
)

// ParseLimitOffset reads the limit and offset query parameters. Missing or malformed values
// fall back to defLimit and 0; limit is clamped to [1, maxLimit] and offset to >= 0.
func ParseLimitOffset(r *http.Request, defLimit, maxLimit int) (limit, offset int) {
	q := r.URL.Query()
	limit = queryInt(q.Get("limit"), defLimit)
	offset = max(queryInt(q.Get("offset"), 0), 0)
	return min(max(limit, 1), max(maxLimit, 1)), offset
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
