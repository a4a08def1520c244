package plugindomain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ModuleKind identifies how a module image is loaded
type ModuleKind string

const (
	KindSharedObject ModuleKind = "shared-object"
	KindExecutable   ModuleKind = "executable"
	KindBuiltin      ModuleKind = "builtin"
)

// Path prefixes selecting a module kind. Paths without a prefix are shared
// objects.
const (
	ExecPrefix    = "exec:"
	BuiltinPrefix = "builtin:"
)

// ManagerState is the loading state of a plugin manager
type ManagerState string

const (
	StateEmpty   ManagerState = "empty"
	StateLoading ManagerState = "loading"
	StateReady   ManagerState = "ready"
	StateFailed  ManagerState = "failed"
)

// Descriptor describes a loaded module and the plugin it produced
type Descriptor struct {
	Index  int        `json:"index"`
	Path   string     `json:"path"`
	Kind   ModuleKind `json:"kind"`
	Plugin string     `json:"plugin"`
	// LiveWorkers counts workers built from this module and not yet closed.
	LiveWorkers int `json:"live_workers"`
}

// LoadErrorKind classifies a module load failure
type LoadErrorKind int

const (
	CannotOpenModule LoadErrorKind = iota
	MissingEntryPoint
	InvalidEntryPoint
	EntryPointFailed
)

func (k LoadErrorKind) String() string {
	switch k {
	case CannotOpenModule:
		return "cannot open module"
	case MissingEntryPoint:
		return "missing entry point"
	case InvalidEntryPoint:
		return "invalid entry point"
	case EntryPointFailed:
		return "entry point failed"
	default:
		return fmt.Sprintf("load error(%d)", int(k))
	}
}

// LoadError reports why a module could not be loaded. It aborts the whole
// load sequence.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// OptionProcessingError reports the plugin that rejected its options. It is
// fatal: plugins after it never see their options.
type OptionProcessingError struct {
	Plugin string
	Err    error
}

func (e *OptionProcessingError) Error() string {
	return fmt.Sprintf("could not process options for plugin %s: %v", e.Plugin, e.Err)
}

func (e *OptionProcessingError) Unwrap() error {
	return e.Err
}

// LiveWorkersError is returned when teardown is attempted while workers built
// from loaded modules are still open.
type LiveWorkersError struct {
	// Modules maps module path to its live worker count.
	Modules map[string]int
}

func (e *LiveWorkersError) Error() string {
	parts := make([]string, 0, len(e.Modules))
	for path, n := range e.Modules {
		parts = append(parts, fmt.Sprintf("%s (%d)", path, n))
	}
	sort.Strings(parts)
	return "cannot release modules with live workers: " + strings.Join(parts, ", ")
}

// ErrNoPlugins is returned when worker specs are requested before any module
// has loaded.
var ErrNoPlugins = errors.New("no plugins loaded")

// ErrLoadAborted is returned when loading continues after a failed load.
var ErrLoadAborted = errors.New("load sequence aborted by an earlier failure")

// ErrManagerClosed is returned by operations on a torn-down manager.
var ErrManagerClosed = errors.New("plugin manager is closed")
