// Package server exposes a list store over HTTP for `setlist serve`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("PUT /api/lists/{id}").
//
// # Endpoints
//
//	GET    /health
//	GET    /api/lists?scope=<key>&user=<id>   every list of a scope, newest first
//	POST   /api/lists?scope=<key>&user=<id>   create from a full ListUpdate, returns {"id": ...}
//	PUT    /api/lists/{id}                    full replacement of name and item orders
//	DELETE /api/lists/{id}
//	GET    /api/songs, /api/songs/{id}, /api/cards, /api/cards/{id}
//	GET    /api/events?scope=<key>            websocket change feed
//
// Errors are JSON objects of the form {"error": "..."} with a status derived from the shared sentinels.
//
// # Change Feed
//
// The [Hub] keeps one websocket per subscriber and pushes a services.ChangeNotice to every
// subscriber of a scope after a write to one of its lists. Clients treat a notice as a
// signal to refetch; notices carry no list state.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
