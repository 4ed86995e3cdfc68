// Package fastembed provides an in-process embedding provider backed by
// ONNX models. It is only functional when built with -tags fastembed, since
// it needs the ONNX runtime shared library at link time.
package fastembed

import "errors"

var (
	// ErrNotBuilt is returned when the binary lacks the fastembed build tag.
	ErrNotBuilt = errors.New("fastembed support not compiled in (build with -tags fastembed)")

	// ErrClosed is returned when embedding after the provider was closed.
	ErrClosed = errors.New("fastembed provider closed")
)
