package resource

import (
	"context"
	"io"
)

// MeteredWriter debits the interconnect budget before each write. Callers
// streaming snapshots through io.Writer surfaces wrap the destination with
// it so model publishing shares the bandwidth budget with collectives.
type MeteredWriter struct {
	w    io.Writer
	ctrl *Controller
	ctx  context.Context
}

// NewMeteredWriter wraps w with ctrl's bandwidth budget.
func NewMeteredWriter(ctx context.Context, w io.Writer, ctrl *Controller) *MeteredWriter {
	return &MeteredWriter{w: w, ctrl: ctrl, ctx: ctx}
}

// Write implements io.Writer.
func (w *MeteredWriter) Write(p []byte) (int, error) {
	if err := w.ctrl.WaitInterconnect(w.ctx, len(p)); err != nil {
		return 0, err
	}

	return w.w.Write(p)
}

// MeteredReader debits the interconnect budget before each read, charging
// the full buffer size since the read length is unknown up front.
type MeteredReader struct {
	r    io.Reader
	ctrl *Controller
	ctx  context.Context
}

// NewMeteredReader wraps r with ctrl's bandwidth budget.
func NewMeteredReader(ctx context.Context, r io.Reader, ctrl *Controller) *MeteredReader {
	return &MeteredReader{r: r, ctrl: ctrl, ctx: ctx}
}

// Read implements io.Reader.
func (r *MeteredReader) Read(p []byte) (int, error) {
	if err := r.ctrl.WaitInterconnect(r.ctx, len(p)); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
