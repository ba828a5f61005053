// Package serialization provides the native .born checkpoint format for
// saving and loading network state dicts.
//
//	Format Structure:
//	  0x00 [4 bytes: Magic "BORN"]
//	  0x04 [4 bytes: Version (uint32 LE)]
//	  0x08 [4 bytes: Flags (uint32 LE)]
//	  0x0C [4 bytes: reserved]
//	  0x10 [8 bytes: Header Size (uint64 LE)]
//	  0x18 [8 bytes: Data Size (uint64 LE)]
//	  0x20 [32 bytes: SHA-256 of the data section]
//	  0x40 [Header: JSON metadata]
//	  [Tensor data: raw little-endian bytes, 64-byte aligned]
//
// The JSON header carries a model ID, the architecture configuration, free
// form metadata and one entry per tensor. Tensors are stored as float32 or,
// when requested, float16; readers always return float32.
//
// Example usage:
//
//	// Save a state dict
//	w, err := serialization.NewWriter("model.born")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	err = w.WriteStateDict(net.StateDict(), header, serialization.WriteOptions{})
//
//	// Load it back
//	r, err := serialization.NewReader("model.born")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	stateDict, err := r.ReadStateDict()
package serialization
