// Package syncjob runs background mailbox sync jobs.
//
// A job walks the tenant's recent mail history through the full pipeline:
// fetch, batch into daily episodes, extract entities, normalize them into
// canonical graph nodes, and cache the source emails as searchable
// documents. The orchestrator admits at most one active job per tenant and
// dispatches accepted jobs onto a shared worker pool; the runner executes a
// single job under soft and hard time limits.
package syncjob
