package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hprobot/fleetd/internal/config"
)

func parsePaginationOrWriteInvalid(w http.ResponseWriter, r *http.Request) (Pagination, bool) {
	pg, err := ParsePagination(r)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return Pagination{}, false
	}
	return pg, true
}

func parseDateQueryOrWriteInvalid(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	day, err := ParseDateQuery(r, key, time.Now())
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return time.Time{}, false
	}
	return day, true
}

// requireKnownMap resolves the {map} path parameter against the
// configured map set. Unknown maps get a 404 before any store access.
func requireKnownMap(w http.ResponseWriter, r *http.Request, defs []config.MapDef) (config.MapDef, bool) {
	name := PathParam(r, "map")
	def, ok := config.FindMap(defs, name)
	if !ok {
		writeNotFound(w, "map not found: "+name)
		return config.MapDef{}, false
	}
	return def, true
}

func requireNodeParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := PathParam(r, "node")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeInvalidArgument(w, "node: must be a positive integer")
		return 0, false
	}
	return id, true
}
