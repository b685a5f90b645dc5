// Package batch provides id-list chunking for capped membership clauses.
package batch

// Chunk splits ids into consecutive chunks of at most size elements,
// preserving order. Chunks share backing storage with ids.
// A size below 1 yields a single chunk.
func Chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size < 1 {
		return [][]string{ids}
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
