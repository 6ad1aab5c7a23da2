// Package sink provides the local registry the bridge reconciles into.
//
// A Sink accepts register, update and unregister operations with idempotent,
// field-level merge semantics:
//
//   - Register overwrites any record already stored under the identifier
//   - Update merges only the fields named in the change set; applying the same
//     change set twice leaves the registry unchanged. Updating an identifier
//     that is not stored inserts the full record
//   - Unregister of an absent identifier is a no-op, not an error
//
// Sinks that can be read back implement Reader as well. The in-memory, etcd,
// redis and PostgreSQL sinks all do; RateLimited forwards Reader when the
// wrapped sink has it.
package sink
