// Package drafts persists the offline draft queue in SQLite.
//
// Drafts are keyed by resource id: saving a draft for a resource that
// already has one replaces it. List returns drafts in capture order, which
// is the order they are replayed in.
package drafts
