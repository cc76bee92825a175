// Package auth defines the provider contract shared by every login mechanism,
// the Result variant they report, the single-slot result Stream, and the
// Registry that owns provider instances for one host session.
//
// Providers never return outcomes from Login. Each attempt ends with exactly
// one Result emitted on the provider's Stream; the Registry merges every
// provider's stream into one sequence the host consumes.
package auth
