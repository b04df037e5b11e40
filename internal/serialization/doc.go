// Package serialization implements the .born parameter format used by Forge
// models, plus a SafeTensors reader and writer for interchange.
//
// A .born file (format version 2) is laid out as:
//
//	Fixed header (64 bytes):
//	  0x00  [4 bytes: Magic "BORN"]
//	  0x04  [4 bytes: Version (uint32 LE)]
//	  0x08  [4 bytes: Flags (uint32 LE)]
//	  0x0C  [4 bytes: Compression codec (uint32 LE)]
//	  0x10  [8 bytes: Header size (uint64 LE)]
//	  0x18  [8 bytes: Stored data size (uint64 LE)]
//	  0x20  [32 bytes: SHA-256 of the stored data section]
//	[Header: JSON metadata]
//	[Padding to a 64-byte boundary]
//	[Data section: tensor bytes, optionally zstd or lz4 compressed]
//
// The JSON header records the Forge version, model name, block kind, data
// type, string properties and a tensor table with offsets into the
// uncompressed data section.
//
// Example usage:
//
//	err := serialization.WriteFile("mlp-0003.born", tensors, serialization.Header{
//	    ModelName: "mlp",
//	    BlockKind: "Sequential",
//	}, serialization.WriterOptions{Compression: serialization.CompressionZstd})
//
//	r, err := serialization.Open("mlp-0003.born", serialization.ReaderOptions{})
//	w, err := r.Tensor("01Linear.weight")
package serialization
