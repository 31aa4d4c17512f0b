// Package sanitizer normalizes free-text input before validation and storage.
//
// All functions are idempotent and never fail; invalid runes are dropped rather
// than reported.
package sanitizer
