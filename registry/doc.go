// Package registry provides the job registries that resolve job names to
// handlers.
//
//   - [Simple] holds explicitly registered handlers.
//   - [Fallback] queries an ordered list of registries and returns the first
//     handler found.
//   - [Builder] resolves plain "scope:name" builder identifiers through a
//     [Host].
//   - [Target] resolves "{project:target[:configuration]}" names into a
//     builder plus base options through a [Host].
//
// Builder and Target registries share a [Cache] that memoises builder info
// and constructed handlers, so repeated schedules of the same name reuse the
// same handler and description.
package registry
