// Package models defines the domain entities shared by the setlist synchronization engine.
//
// The package contains three categories of types:
//
// 1. Catalog entities: opaque, immutable once loaded
//   - [Song] : lyrics split into verses
//   - [Card] : a visual slide with one or more images
//
// 2. Presentations: ordered, heterogeneous lists of catalog entities
//   - [List] : a named presentation, either a local draft or a persisted list
//   - [SongItem], [CardItem] : a catalog entity positioned within a list
//   - [OrderedItem] : a tagged song-or-card used wherever both kinds are handled together
//
// 3. Wire payloads and identity
//   - [ListUpdate] : the full replacement state written to the remote store
//   - [Scope] : the storage and cache partition of one identity
//
// Within a list the Order values of songs and cards together form a permutation of 1..N,
// and item ids are unique across both kinds.
package models
