package datom

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

type loadState int

const (
	stateNotLoaded loadState = iota
	stateLoaded
)

var (
	mu          sync.Mutex
	state       loadState
	loadErr     error
	pendingOpts []Option
	nativeLib   uintptr
	native      *boundary
	libPath     string

	// exitProcess is replaced in tests.
	exitProcess = os.Exit
)

// Configure records bootstrap options for the first load. It fails once the
// library has been loaded, or once a load attempt has failed.
func Configure(opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	if state == stateLoaded {
		return ErrAlreadyLoaded
	}
	if loadErr != nil {
		return fmt.Errorf("native library bootstrap already failed: %w", loadErr)
	}

	merged := append(append([]Option(nil), pendingOpts...), opts...)
	if _, err := resolveBootstrapConfig(merged); err != nil {
		return err
	}
	pendingOpts = merged
	return nil
}

// Load locates and loads the native library if that has not happened yet.
// Only the first call does any work; concurrent callers wait for it. A
// failure is permanent: every later call returns the same error.
func Load() error {
	mu.Lock()
	defer mu.Unlock()

	if state == stateLoaded {
		return nil
	}
	if loadErr != nil {
		return loadErr
	}

	cfg, err := resolveBootstrapConfig(pendingOpts)
	if err != nil {
		loadErr = err
		return err
	}

	lib, b, path, err := runBootstrap(cfg)
	if err != nil {
		loadErr = err
		return err
	}

	nativeLib = lib
	native = b
	libPath = path
	state = stateLoaded
	return nil
}

// EnsureLoaded guarantees the native library is loaded before any native call.
// It is safe to call from any number of goroutines. If the library cannot be
// loaded the process prints a diagnostic and exits with status 1; there is
// no degraded mode.
func EnsureLoaded() {
	if err := Load(); err != nil {
		Logger().Error("native library bootstrap failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "datom: %v\n", err)
		exitProcess(1)
	}
}

// Loaded reports whether the native library has been loaded.
func Loaded() bool {
	mu.Lock()
	defer mu.Unlock()
	return state == stateLoaded
}

// LibraryPath returns the filesystem path the native library was loaded
// from, or "" before loading.
func LibraryPath() string {
	mu.Lock()
	defer mu.Unlock()
	return libPath
}

// acquireBoundary loads the library if needed and returns its entry points.
// The error path is only reachable when exitProcess does not terminate.
func acquireBoundary() (*boundary, error) {
	EnsureLoaded()

	mu.Lock()
	defer mu.Unlock()
	if native == nil {
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, ErrLoad
	}
	return native, nil
}

// Version returns the version string reported by the native library.
func Version() (string, error) {
	b, err := acquireBoundary()
	if err != nil {
		return "", err
	}
	return b.version(), nil
}
