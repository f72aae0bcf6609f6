// Package model describes the base objects manipulated by the block storage engine.
//
// The object model is composed of:
//
//  Blocks:
//    An immutable payload of at most BlockSize bytes, identified by the 160-bit digest of its content.
//    A block is stored once in the blocks directory regardless of how many files reference it.
//
//  File indices:
//    A per-file binary log mapping logical block positions to block digests,
//    preceded by a small header tracking the logical size and the number of entries.
//
//  Paths:
//    Validated, root-relative locations of file indices.
package model
