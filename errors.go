package pcago

import (
	"errors"
	"fmt"

	"github.com/mnmg/pcago/comm"
	"github.com/mnmg/pcago/model"
	"github.com/mnmg/pcago/partition"
	"github.com/mnmg/pcago/project"
	"github.com/mnmg/pcago/solver"
	"github.com/mnmg/pcago/stats"
)

var (
	// ErrInvalidPartition classifies descriptor, shard-shape, and parameter
	// validation failures. They are detected locally, before any collective
	// is issued.
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrCommunication classifies collective failures, including context
	// cancellation while a collective is in flight. They are terminal: the
	// operation aborts on all ranks and is never retried internally.
	ErrCommunication = errors.New("communication failed")

	// ErrNoConvergence is returned when the selected eigensolver does not
	// converge. It mirrors solver.ErrNoConvergence.
	ErrNoConvergence = solver.ErrNoConvergence

	// ErrBufferSize classifies misshapen caller-supplied output buffers.
	ErrBufferSize = errors.New("buffer size mismatch")

	// ErrNotFitted is returned when a projection is asked of a nil or
	// malformed model.
	ErrNotFitted = errors.New("model not fitted")

	// ErrInvalidNComponents is returned when n_components is negative or
	// exceeds the feature count. Callers see it classified under
	// ErrInvalidPartition.
	ErrInvalidNComponents = errors.New("invalid n_components")
)

// translateError normalizes package-level errors into the facade classes so
// callers can match with errors.Is. Errors that already carry a class pass
// through unchanged; details stay reachable with errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrInvalidPartition) || errors.Is(err, ErrCommunication) ||
		errors.Is(err, ErrBufferSize) || errors.Is(err, ErrNotFitted) {
		return err
	}

	if isPartitionError(err) {
		return fmt.Errorf("%w: %w", ErrInvalidPartition, err)
	}

	if isCommError(err) {
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	}

	if errors.Is(err, project.ErrBasisShape) || errors.Is(err, project.ErrBufferShape) {
		return fmt.Errorf("%w: %w", ErrBufferSize, err)
	}

	// A malformed model cannot project.
	if errors.Is(err, model.ErrInvalidModel) {
		return fmt.Errorf("%w: %w", ErrNotFitted, err)
	}

	return err
}

func isPartitionError(err error) bool {
	for _, sentinel := range []error{
		partition.ErrEmptyDescriptor,
		partition.ErrDuplicateRank,
		partition.ErrNegativeRows,
		partition.ErrInvalidColumns,
		partition.ErrNoRows,
		partition.ErrUnknownRank,
		stats.ErrInsufficientRows,
		solver.ErrUnknownAlgorithm,
		ErrInvalidNComponents,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	var rows *partition.ErrShardRows
	if errors.As(err, &rows) {
		return true
	}

	var data *partition.ErrShardData
	if errors.As(err, &data) {
		return true
	}

	return false
}

func isCommError(err error) bool {
	for _, sentinel := range []error{
		comm.ErrClusterSize,
		comm.ErrBufferMismatch,
		comm.ErrOpMismatch,
		comm.ErrRootMismatch,
		comm.ErrInvalidRoot,
		comm.ErrAborted,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}
