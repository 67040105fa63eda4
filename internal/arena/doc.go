// Package arena provides the fixed-capacity bump allocator that backs a tensor
// session.
//
// An Arena reserves one contiguous region up front and hands out zeroed,
// aligned sub-regions by advancing a cursor. There is no per-allocation free:
// the whole region is released at once by Close.
//
// # Features
//
//   - Anonymous private mapping on unix (no GC scanning of tensor data)
//   - Caller-supplied external buffers
//   - Address-based alignment, so pointer-free structs can be viewed in place
//   - Mark/Rewind for all-or-nothing multi-part allocations
//
// # Concurrency
//
// An Arena is not safe for concurrent allocation. Build everything from one
// goroutine; concurrent readers of already allocated regions are fine.
package arena
