// Package repositories implements SQLite persistence for lists, the song and card catalog, and draft slots.
//
// Key Implementations:
//   - [ListRepository] : Scoped lists with transactional full-replacement updates
//   - [SongRepository] : Song catalog
//   - [CardRepository] : Card catalog
//   - [DraftRepository] : Durable key/value slots backing client drafts
//
// Lists carry a ULID as their public ID and a sequence number for stable newest-first ordering.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
// Deleted lists are soft-deleted via deleted_at and excluded from every query.
package repositories
