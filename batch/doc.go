// Package batch turns raw provider messages into extraction-engine episodes.
//
// Messages are sorted chronologically, bucketed by UTC calendar day and
// chunked into bounded sub-batches. Each sub-batch is rendered into a single
// episode body with a fixed per-message layout and a fixed separator, so
// re-rendering the same messages always yields the same text.
//
// All text destined for the graph passes through Sanitize, which strips the
// markup and characters known to break downstream full-text search.
package batch
