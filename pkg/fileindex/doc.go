/*
Package fileindex maintains the block map of a logical file.

A file index is a small binary file, stored at some path relative to the storage root:

	offset 0:  magic tag, 6 bytes, "CFS0.1"
	offset 6:  logical size in bytes, 8 bytes
	offset 14: total blocks, 8 bytes
	offset 22: total blocks x { position: 8 bytes, digest: 20 bytes }

Integers are little-endian. Entries are appended in the order positions are first written.
Writing again at a known position overwrites the digest field of its entry in place.

Payloads are stored in a block store: every entry holds one reference to the block it points at.
Overwriting an entry releases the reference on the previous block, and deleting a file index releases
the references of all its entries.

The entry log and the header are updated with separate writes. A crash in between may leave the
header stale: Rebuild recomputes it from the entry log.

An Index is not safe for concurrent use: callers are expected to serialize access.
*/
package fileindex
