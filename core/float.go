package core

// Float is the element type for dataset shards and model values.
// Cross-rank accumulations (column sums, Gram matrices) are always carried
// out in float64 regardless of T, so reduced statistics agree across callers
// no matter which precision their shards use.
type Float interface {
	~float32 | ~float64
}
