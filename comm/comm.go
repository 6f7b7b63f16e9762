// Package comm provides the collective-communication substrate for the
// distributed fit.
//
// # Overview
//
// Every rank drives its share of an operation through a Communicator. The
// engine issues at most a handful of collectives per fit, and every rank must
// issue the same collectives in the same order with equally sized buffers;
// the implementations here detect divergence where they can and fail all
// participants rather than hanging.
//
// # Determinism
//
// All-reduce sums combine rank contributions in a fixed order that does not
// depend on goroutine scheduling or on how rows are distributed, so repeated
// runs over the same global dataset reduce to identical floating-point
// results. The rendezvous hub (InProc) always sums in ascending rank order;
// the ring transport uses the fixed ring schedule for a given cluster size.
//
// # Failure model
//
// A failed or cancelled collective is terminal: the error is surfaced on
// every reachable participant and no retry is attempted. Once a collective
// has been aborted the cluster is poisoned and further collectives have
// undefined results.
package comm

import (
	"context"
	"errors"
)

var (
	// ErrClusterSize is returned for non-positive cluster sizes.
	ErrClusterSize = errors.New("cluster size must be positive")
	// ErrBufferMismatch is returned when ranks supply differently sized
	// buffers to one collective, or when a gather output has the wrong size.
	ErrBufferMismatch = errors.New("collective buffer size mismatch")
	// ErrOpMismatch is returned when ranks issue different collective
	// operations in the same round.
	ErrOpMismatch = errors.New("collective operation mismatch")
	// ErrRootMismatch is returned when ranks disagree on a broadcast root.
	ErrRootMismatch = errors.New("broadcast root mismatch")
	// ErrInvalidRoot is returned for a broadcast root outside [0, size).
	ErrInvalidRoot = errors.New("broadcast root out of range")
	// ErrAborted is returned when a collective is cancelled or fails on
	// another rank.
	ErrAborted = errors.New("collective aborted")
)

// Communicator is one rank's handle on the collective substrate.
//
// Buffers are always float64: cross-rank statistics are accumulated in
// double precision regardless of the shard element type. Calls block until
// every rank has participated or ctx is done.
type Communicator interface {
	// Rank returns this participant's id, in [0, Size).
	Rank() int

	// Size returns the number of participants.
	Size() int

	// AllReduceSum replaces buf on every rank with the element-wise sum of
	// all ranks' buffers.
	AllReduceSum(ctx context.Context, buf []float64) error

	// AllGather concatenates every rank's local buffer in ascending rank
	// order into gathered, which must hold Size()*len(local) values.
	AllGather(ctx context.Context, local, gathered []float64) error

	// Broadcast replaces buf on every rank with root's buffer.
	Broadcast(ctx context.Context, buf []float64, root int) error

	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error
}

// opKind tags the collective a rank is participating in, so mismatched call
// sequences across ranks are detected instead of deadlocking.
type opKind int

const (
	opAllReduce opKind = iota
	opAllGather
	opBroadcast
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opAllReduce:
		return "all-reduce"
	case opAllGather:
		return "all-gather"
	case opBroadcast:
		return "broadcast"
	case opBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}
