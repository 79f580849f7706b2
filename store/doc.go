// Package store implements the durable per-identity message log and the
// outgoing retry queue.
//
// Persistence goes through the Backend trait, an async key-value store
// with two first-class secondary indexes (conversation id and next retry
// time). Two backends ship with the module: an in-memory store and a
// SQLite store. The MessageStore layered on top applies a uniform
// at-rest encryption policy: when enabled, the sensitive fields of every
// record (content, attachments, reply target) are bundled into a single
// AES-GCM blob keyed by a hash of the identity secret, while the
// non-sensitive fields stay queryable in the clear.
package store
