// Package tasks runs long list operations with real-time progress reporting.
//
// # Bulk Export
//
// [Exporter.Export] writes every selected list of a [Source] to its own file:
//
//  1. Lists are snapshotted from the source (drafts and saved lists alike)
//  2. When a catalog is configured, item content is refreshed from it
//     - Lookups are rate limited and shared between workers
//     - Items missing from the catalog keep their cached content
//  3. A worker pool renders each list with the formatter package
//  4. An export_manifest.json summarizes what was written and what failed
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel.
// Sends use select with default so a slow reader never stalls an export.
package tasks
