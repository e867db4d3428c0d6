// Package pool provides object pooling to reduce allocation pressure in the
// parse pipeline.
//
// The package offers a generic Pool[T] with usage statistics plus global
// typed pools for the slices the parser churns through: byte scratch buffers,
// uint64 tape scratch, and string slices for header handling. GlobalBufferPool
// is a size-classed buffer pool used by the source loader when reading
// streams and decompressing inputs, keeping small and large buffers in
// separate classes.
//
// Usage:
//
//	buf := pool.GetByteSlice()
//	defer pool.PutByteSlice(buf)
//
//	big := pool.GlobalBufferPool.Get(1 << 20)
//	defer pool.GlobalBufferPool.Put(big)
package pool
