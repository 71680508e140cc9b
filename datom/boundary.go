package datom

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// nativeHandle is an opaque reference to an object owned by the native
// library. It is never interpreted or persisted on the Go side.
type nativeHandle uintptr

// invalidHandle marks a wrapper whose handle was released or never created.
const invalidHandle nativeHandle = 0

// Exported entry points of the native library.
const (
	symVersion             = "datom_version"
	symStringDestroy       = "datom_string_destroy"
	symConnectionCreate    = "datom_connection_create"
	symConnectionDestroy   = "datom_connection_destroy"
	symConnectionLatestT   = "datom_connection_latest_t"
	symLastConnectionError = "datom_last_connection_error"
	symFactFromEDN         = "datom_fact_from_edn"
	symFactToEDN           = "datom_fact_to_edn"
	symFactDestroy         = "datom_fact_destroy"
)

// boundary is the Go-facing view of the native entry points. String
// conversion and native string ownership are handled here so wrappers only
// deal with Go values and handles.
//
// The native side records connection errors per OS thread, so calls that can
// fail return the recorded kind together with their result.
type boundary struct {
	version           func() string
	connectionCreate  func() (nativeHandle, ConnectionErrorKind)
	connectionDestroy func(nativeHandle)
	connectionLatestT func(nativeHandle) (int64, ConnectionErrorKind)
	factFromEDN       func(edn string) nativeHandle
	factToEDN         func(nativeHandle) (string, bool)
	factDestroy       func(nativeHandle)
}

// binder resolves the boundary from a loaded library image.
type binder func(lib uintptr) (*boundary, error)

type symbolTable struct {
	lib uintptr
	err error
}

func (s *symbolTable) register(fptr any, name string) {
	if s.err != nil {
		return
	}
	sym, err := lookupSymbol(s.lib, name)
	if err != nil {
		s.err = fmt.Errorf("failed to resolve symbol %s: %w", name, err)
		return
	}
	if sym == 0 {
		s.err = fmt.Errorf("symbol %s resolved to a nil address", name)
		return
	}
	purego.RegisterFunc(fptr, sym)
}

// bindBoundary registers every native entry point with purego. A missing
// symbol fails the whole binding.
func bindBoundary(lib uintptr) (*boundary, error) {
	var (
		version             func() uintptr
		stringDestroy       func(uintptr)
		connectionCreate    func() uintptr
		connectionDestroy   func(uintptr)
		connectionLatestT   func(uintptr) int64
		lastConnectionError func() int32
		factFromEDN         func(uintptr) uintptr
		factToEDN           func(uintptr) uintptr
		factDestroy         func(uintptr)
	)

	table := &symbolTable{lib: lib}
	table.register(&version, symVersion)
	table.register(&stringDestroy, symStringDestroy)
	table.register(&connectionCreate, symConnectionCreate)
	table.register(&connectionDestroy, symConnectionDestroy)
	table.register(&connectionLatestT, symConnectionLatestT)
	table.register(&lastConnectionError, symLastConnectionError)
	table.register(&factFromEDN, symFactFromEDN)
	table.register(&factToEDN, symFactToEDN)
	table.register(&factDestroy, symFactDestroy)
	if table.err != nil {
		return nil, table.err
	}

	return &boundary{
		// datom_version returns a static string; it is not freed.
		version: func() string {
			return goString(version())
		},
		connectionCreate: func() (nativeHandle, ConnectionErrorKind) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			h := connectionCreate()
			if h == 0 {
				return invalidHandle, ConnectionErrorKind(lastConnectionError())
			}
			return nativeHandle(h), ConnectionErrorNone
		},
		connectionDestroy: func(h nativeHandle) {
			connectionDestroy(uintptr(h))
		},
		connectionLatestT: func(h nativeHandle) (int64, ConnectionErrorKind) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			t := connectionLatestT(uintptr(h))
			if t < 0 {
				return t, ConnectionErrorKind(lastConnectionError())
			}
			return t, ConnectionErrorNone
		},
		factFromEDN: func(edn string) nativeHandle {
			buf, ptr, err := cString(edn)
			if err != nil {
				return invalidHandle
			}
			h := factFromEDN(ptr)
			runtime.KeepAlive(buf)
			return nativeHandle(h)
		},
		factToEDN: func(h nativeHandle) (string, bool) {
			ptr := factToEDN(uintptr(h))
			if ptr == 0 {
				return "", false
			}
			defer stringDestroy(ptr)
			return goString(ptr), true
		},
		factDestroy: func(h nativeHandle) {
			factDestroy(uintptr(h))
		},
	}, nil
}
