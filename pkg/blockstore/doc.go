// Package blockstore persists fixed-size blocks under the digest of their content.
//
// Blocks live in the ".BLOCKS" subdirectory of the storage root, one file per distinct digest,
// named after the lowercase hex encoding of the digest. A block file holds an 8 bytes reference
// count, followed by at most 4096 bytes of payload.
//
// Identical payloads are stored once. The reference count tracks how many file index entries
// point at a block: the block file is removed when the count drops to zero.
//
// Reference counts may be updated by several processes sharing the same root directory.
// Updates are serialized by advisory byte-range locks on the reference count field
// (open file description locks on linux), on top of an in-process lock sharded by digest.
// Payload reads take a shared lock on the whole block file.
package blockstore
