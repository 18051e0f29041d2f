// Package backends defines the interface a computation building and execution engine
// needs to implement to be used by the graphdsl packages.
//
// A graphdsl Graph is lowered to backend operations through a Builder; the Builder is
// then compiled into an Executable that runs the computation for concrete input
// tensors. The package also keeps a registry of available backends, selectable by a
// configuration string.
//
// The pure Go reference implementation lives in github.com/KevinCoble/graphdsl/backends/simplego.
package backends

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Backend is the API that needs to be implemented by a graphdsl backend.
type Backend interface {
	// Name returns the short name of the backend, e.g. "go" for the pure Go implementation.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Builder creates a new builder used to define a new named computation.
	Builder(name string) Builder

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name. The constructor receives the
// backend-specific part of the configuration string.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the backend configuration to use if none is given and the
// environment variable is not set.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration.
//
// The format of the configuration is "<backend_name>:<backend_configuration>", where
// "<backend_configuration>" is backend specific and optional.
const ConfigEnvVar = "GRAPHDSL_BACKEND"

// New returns a new Backend using the default configuration:
//
//  1. The environment variable GRAPHDSL_BACKEND, if defined.
//  2. The variable DefaultConfig, if set.
//  3. The first registered backend, with an empty configuration.
//
// It returns an error if no backend was registered or if the construction fails.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnvVar); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew is like New, but panics on error.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		panic(err)
	}
	return backend
}

// NewWithConfig creates a Backend from a configuration string formatted as
// "<backend_name>:<backend_configuration>".
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered backends -- maybe import the default one with import _ "github.com/KevinCoble/graphdsl/backends/simplego"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}
