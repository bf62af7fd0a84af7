// Package htmlmeta extracts profile metadata from HTML pages.
//
// Adapters use it for two things: enriching evidence payloads (title,
// description, og:image, outbound profile links) and deciding whether a
// subject appears in a hit-indicating context of the page.
package htmlmeta
