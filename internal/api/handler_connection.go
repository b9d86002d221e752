package api

import (
	"net/http"
	"sort"

	"github.com/hprobot/fleetd/internal/conntrack"
)

type connectionView struct {
	Key    string            `json:"key"`
	Record map[string]string `json:"record"`
}

// HandleListConnections returns a handler for GET /api/v1/connections.
func HandleListConnections(tracker *conntrack.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		records := tracker.List(r.Context())
		list := make([]connectionView, 0, len(records))
		for key, rec := range records {
			list = append(list, connectionView{Key: key, Record: rec})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
		WritePage(w, http.StatusOK, list, pg)
	}
}
