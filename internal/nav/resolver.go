// Package nav resolves notification action URLs into host-shell
// navigation targets.
package nav

import (
	"net/url"
	"strings"
)

// Route identifies the workspace a target opens.
type Route string

// Known routes.
const (
	RouteInbox    Route = "inbox"
	RouteOrders   Route = "orders"
	RouteClients  Route = "clients"
	RouteExternal Route = "external"
)

// Target is a resolved navigation destination. For workspace routes,
// EntityID names the record to select once the view has mounted. For
// RouteExternal, Path carries the full URL and EntityID is empty.
type Target struct {
	Route    Route
	Path     string
	EntityID string
}

// Resolve interprets an action URL. Recognized shapes:
//
//	/inbox/{conversationId}
//	/communications...?conversation_id={id}
//	/orders/{orderId}
//	/clients/{clientId}
//
// Anything else is treated as an opaque URL navigated to directly.
func Resolve(actionURL string) Target {
	u, err := url.Parse(actionURL)
	if err != nil {
		return Target{Route: RouteExternal, Path: actionURL}
	}

	path := u.Path

	if strings.HasPrefix(path, "/communications") {
		if id := u.Query().Get("conversation_id"); id != "" {
			return Target{Route: RouteInbox, Path: path, EntityID: id}
		}
	}

	if id, ok := pathSuffix(path, "/inbox/"); ok {
		return Target{Route: RouteInbox, Path: path, EntityID: id}
	}
	if id, ok := pathSuffix(path, "/orders/"); ok {
		return Target{Route: RouteOrders, Path: path, EntityID: id}
	}
	if id, ok := pathSuffix(path, "/clients/"); ok {
		return Target{Route: RouteClients, Path: path, EntityID: id}
	}

	return Target{Route: RouteExternal, Path: actionURL}
}

// pathSuffix returns the single path segment after prefix, if the
// path is exactly prefix plus one non-empty segment.
func pathSuffix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
