// Package services defines the remote store the list engine writes through and implements it
// in-process and over HTTP.
//
// # Contracts
//
// [RemoteStore] is the four-call surface the engine needs: list every list of a scope,
// create a list with its items, replace a list's name and item orders, and delete a list.
// [Catalog] serves the songs and cards lists refer to. A [Backend] is both.
//
// # Implementations
//
//   - [LocalStore] : SQLite repositories; used by the CLI directly and by the HTTP server
//   - [APIService] : JSON over HTTP to a running server, rate limited with [rate.Limiter]
//
// # Change Feed
//
// [Subscriber] follows the server's websocket feed (/api/events) for one scope and hands
// every [ChangeNotice] to a callback, redialing after disconnects. Clients use it to
// revalidate their cache when another client writes.
//
// # Error Handling
//
// Both implementations report failures with sentinels from the shared package:
//   - [shared.ErrNotAuthenticated] : anonymous scope or 401
//   - [shared.ErrListNotFound] : unknown list id or 404
//   - [shared.ErrInvalidInput] : rejected payload or 400
//   - [shared.ErrServiceUnavailable] : 503 or 429
//   - [shared.ErrAPIRequest] : transport failure or any other status
package services
