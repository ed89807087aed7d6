package server

import (
	"net/http"

	"github.com/ternarybob/adforge/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method with a JSON 405 for anything else
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}

// RouteCRUD is a convenience function for standard CRUD operations (GET, POST, PUT, DELETE).
// nil handlers are not routed.
func RouteCRUD(w http.ResponseWriter, r *http.Request, get, post, put, delete RouteHandler) {
	routes := make(MethodRouter)
	if get != nil {
		routes[http.MethodGet] = get
	}
	if post != nil {
		routes[http.MethodPost] = post
	}
	if put != nil {
		routes[http.MethodPut] = put
	}
	if delete != nil {
		routes[http.MethodDelete] = delete
	}
	RouteByMethod(w, r, routes)
}
