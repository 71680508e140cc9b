package datom

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeNative is an in-process stand-in for the native library. Handles are
// small integers handed out in creation order.
type fakeNative struct {
	mu          sync.Mutex
	version     string
	next        nativeHandle
	connections map[nativeHandle]int64
	facts       map[nativeHandle]string
	destroyed   map[nativeHandle]int
	calls       map[string]int
	failCreate  ConnectionErrorKind
	failLatestT ConnectionErrorKind
}

func newFakeNative(version string) *fakeNative {
	return &fakeNative{
		version:     version,
		connections: make(map[nativeHandle]int64),
		facts:       make(map[nativeHandle]string),
		destroyed:   make(map[nativeHandle]int),
		calls:       make(map[string]int),
	}
}

func (f *fakeNative) allocLocked() nativeHandle {
	f.next++
	return f.next
}

func (f *fakeNative) destroyLocked(kind string, h nativeHandle) {
	f.calls[kind+"_destroy"]++
	f.destroyed[h]++
	if f.destroyed[h] > 1 {
		panic(fmt.Sprintf("double free of %s handle %d", kind, h))
	}
}

func (f *fakeNative) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeNative) destroyCount(h nativeHandle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed[h]
}

func (f *fakeNative) boundary() *boundary {
	return &boundary{
		version: func() string {
			return f.version
		},
		connectionCreate: func() (nativeHandle, ConnectionErrorKind) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["connection_create"]++
			if f.failCreate != ConnectionErrorNone {
				return invalidHandle, f.failCreate
			}
			h := f.allocLocked()
			f.connections[h] = 0
			return h, ConnectionErrorNone
		},
		connectionDestroy: func(h nativeHandle) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.destroyLocked("connection", h)
			delete(f.connections, h)
		},
		connectionLatestT: func(h nativeHandle) (int64, ConnectionErrorKind) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["connection_latest_t"]++
			if f.failLatestT != ConnectionErrorNone {
				return -1, f.failLatestT
			}
			t, ok := f.connections[h]
			if !ok {
				panic(fmt.Sprintf("latest_t on unknown connection handle %d", h))
			}
			return t, ConnectionErrorNone
		},
		factFromEDN: func(edn string) nativeHandle {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["fact_from_edn"]++
			canonical, ok := canonicalVector(edn)
			if !ok {
				return invalidHandle
			}
			h := f.allocLocked()
			f.facts[h] = canonical
			return h
		},
		factToEDN: func(h nativeHandle) (string, bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls["fact_to_edn"]++
			s, ok := f.facts[h]
			return s, ok
		},
		factDestroy: func(h nativeHandle) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.destroyLocked("fact", h)
			delete(f.facts, h)
		},
	}
}

// canonicalVector accepts a flat EDN vector and normalizes its whitespace.
func canonicalVector(edn string) (string, bool) {
	edn = strings.TrimSpace(edn)
	if len(edn) < 2 || edn[0] != '[' || edn[len(edn)-1] != ']' {
		return "", false
	}
	inner := strings.Fields(strings.ReplaceAll(edn[1:len(edn)-1], ",", " "))
	if len(inner) == 0 {
		return "", false
	}
	return "[" + strings.Join(inner, " ") + "]", true
}

// fakeLoader opens any non-empty file and remembers its contents, so a fake
// binder can report the file's contents as the library version.
type fakeLoader struct {
	mu       sync.Mutex
	opened   atomic.Int32
	closed   atomic.Int32
	contents map[uintptr]string
	next     uintptr
	openErr  error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{contents: make(map[uintptr]string)}
}

func (l *fakeLoader) open(path string) (uintptr, error) {
	l.opened.Add(1)
	if l.openErr != nil {
		return 0, l.openErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.contents[l.next] = strings.TrimSpace(string(data))
	return l.next, nil
}

func (l *fakeLoader) close(uintptr) error {
	l.closed.Add(1)
	return nil
}

func (l *fakeLoader) bind(lib uintptr) (*boundary, error) {
	l.mu.Lock()
	version := l.contents[lib]
	l.mu.Unlock()
	return newFakeNative(version).boundary(), nil
}

func (l *fakeLoader) options() []Option {
	return []Option{withLibraryOpener(l.open, l.close), withBinder(l.bind)}
}

// resetLoaderState restores the package globals between tests.
func resetLoaderState() {
	mu.Lock()
	state = stateNotLoaded
	loadErr = nil
	pendingOpts = nil
	nativeLib = 0
	native = nil
	libPath = ""
	exitProcess = os.Exit
	mu.Unlock()

	RegisterNatives(nil)
	_ = CleanupStaged()
}

// useFakeNative marks the library as loaded with fake entry points.
func useFakeNative(t *testing.T, f *fakeNative) {
	t.Helper()
	resetLoaderState()
	t.Cleanup(resetLoaderState)

	mu.Lock()
	native = f.boundary()
	state = stateLoaded
	libPath = "fake"
	mu.Unlock()
}

func clearBootstrapEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envNativeDir, "")
	t.Setenv(envStagingDir, "")
	t.Setenv(envStagingCache, "")
}
