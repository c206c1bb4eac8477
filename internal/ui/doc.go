// Package ui implements an interactive list editor using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow over a list engine:
//  1. [ListsView] : Browse drafts and saved lists of the current identity
//  2. [ItemsView] : Edit the running order of one list
//  3. [CatalogView] : Pick a song or card to append
//  4. [InputView] : Name a new list or rename the selected one
//  5. [ConfirmView] : Confirm deleting a list
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Engine events flow through the subscription channel, so lists re-render when a flush lands or another client
// changes the scope without polling.
//
// Edits are applied to the engine directly; saving a draft and deleting a list run as commands since both wait on the
// remote store.
//
// Keyboard navigation uses vim-style bindings (j/k, J/K to move, enter, esc, y/n, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
