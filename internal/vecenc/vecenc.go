// Package vecenc serializes float32 embedding vectors to and from the
// little-endian byte layout stored in BLOB columns, shared by the
// embedding cache and the vector store adapter so both sides agree on
// one wire format. Adapted from the teacher's float64/unsafe.Pointer
// embedding serialization (internal/storage/sqlite/embedding_provider.go)
// using encoding/binary and math.Float32bits instead, since embeddings
// here are float32.
package vecenc

import (
	"encoding/binary"
	"math"
)

// Encode serializes vec as little-endian 4-byte floats.
func Encode(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Decode deserializes a byte slice produced by Encode back into a
// []float32. Behavior is undefined if len(buf) is not a multiple of 4.
func Decode(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
