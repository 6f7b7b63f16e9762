package core

// Shard is a dense row-major block of the global dataset owned by one rank.
// Data holds Rows*cols values, row by row; the column count comes from the
// partition descriptor. Shard memory is owned by the caller and is never
// resized by the engine.
type Shard[T Float] struct {
	Data []T
	Rows int
}

// Row returns row i of the shard as a subslice of Data. cols is the column
// count of the global dataset.
func (s Shard[T]) Row(i, cols int) []T {
	return s.Data[i*cols : (i+1)*cols]
}

// TotalRows returns the summed row count of shards.
func TotalRows[T Float](shards []Shard[T]) int {
	n := 0
	for _, s := range shards {
		n += s.Rows
	}
	return n
}
