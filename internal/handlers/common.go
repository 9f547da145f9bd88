package handlers

import (
	"net/http"
	"strconv"

	"erp-backend/internal/middleware"
	"erp-backend/internal/models"

	"github.com/gorilla/mux"
)

// actorOf returns the caller set by the auth middleware.
func actorOf(r *http.Request) models.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// list wraps a collection in the {"<key>": items, "total": n} envelope.
func list(key string, items interface{}, total int) map[string]interface{} {
	return map[string]interface{}{key: items, "total": total}
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
