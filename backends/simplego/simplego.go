// Package simplego implements a simple, and slow, pure Go backend for graphdsl.
//
// It supports the whole backends.Builder operation set, including reverse-mode
// automatic differentiation for Builder.Gradient, over the data types Bool, Int32,
// Int64, Float32 and Float64.
//
// It is registered under the name "go". Import it for the side effect of
// registration:
//
//	import _ "github.com/KevinCoble/graphdsl/backends/simplego"
package simplego

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
)

// BackendName to use in the registry and in the GRAPHDSL_BACKEND environment
// variable configuration.
const BackendName = "go"

// Backend implements the backends.Backend interface for the pure Go implementation.
type Backend struct {
	finalized bool
}

// Compile time check.
var _ backends.Backend = (*Backend)(nil)

func init() {
	backends.Register(BackendName, New)
}

// New constructs a simplego Backend. The config string is not used.
func New(config string) (backends.Backend, error) {
	if config != "" {
		klog.Warningf("simplego backend takes no configuration, %q given", config)
	}
	klog.V(1).Infof("creating %q backend", BackendName)
	return &Backend{}, nil
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description of the backend.
func (b *Backend) Description() string { return "Simple (and slow) pure Go backend" }

// Builder creates a new computation builder.
func (b *Backend) Builder(name string) backends.Builder {
	if b.finalized {
		panic(errors.New("simplego backend is finalized"))
	}
	return newBuilder(b, name)
}

// Finalize releases the backend. Any Builder created afterwards panics.
func (b *Backend) Finalize() { b.finalized = true }
