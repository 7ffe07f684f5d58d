package retrieval

import (
	"encoding/binary"
	"math"
)

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// encodeVector packs v as little-endian float32s for BLOB storage.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// rankByCosine scores every candidate against query and keeps the best
// limit, dropping non-positive similarities.
func rankByCosine(videoID string, query []float32, chunks []IndexedChunk, limit int) []Passage {
	scored := make([]Passage, 0, len(chunks))
	for _, c := range chunks {
		s := cosine(query, c.Embedding)
		if s <= 0 {
			continue
		}
		scored = append(scored, Passage{VideoID: videoID, ChunkIndex: c.ChunkIndex, Text: c.Text, Score: s})
	}
	return TopK(scored, limit)
}
