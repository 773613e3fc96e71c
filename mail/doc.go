// Package mail defines the mail provider abstraction used by the sync
// pipeline.
//
// A Provider lists message ids page by page and fetches full message
// details one at a time, mirroring the upstream mail API. Implementations
// classify upstream failures into the domain error taxonomy: throttling and
// server-side failures surface as transient, credential and request errors
// as permanent.
package mail
