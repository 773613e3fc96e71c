// Package webhook ingests real-time Gmail events delivered by the
// Pipedream Connect trigger.
//
// Each delivery carries exactly one message. The handler validates the
// payload against a JSON schema, claims the event in the webhook ledger
// before doing any work so that concurrent redeliveries of the same
// message resolve to a single winner, and then processes the message in
// the background: one single-message episode is submitted to the
// extraction engine, its entities are normalized into the graph, and the
// email is cached with an embedding for similarity search.
package webhook
