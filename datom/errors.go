package datom

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedPlatform is matched by *UnsupportedPlatformError.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrMissingLibrary is matched by *MissingLibraryError.
	ErrMissingLibrary = errors.New("native library not found")
	// ErrStaging is matched by *StagingError.
	ErrStaging = errors.New("failed to stage native library")
	// ErrLoad is matched by *LoadError.
	ErrLoad = errors.New("failed to load native library")

	// ErrReleased is returned when an operation is invoked on a closed wrapper.
	ErrReleased = errors.New("native resource already released")
	// ErrInvalidEDN is returned when the native parser rejects a textual fact.
	ErrInvalidEDN = errors.New("invalid fact EDN")
	// ErrAlreadyLoaded is returned by Configure after the library is loaded.
	ErrAlreadyLoaded = errors.New("native library already loaded")
)

// UnsupportedPlatformError reports a host operating system for which no
// native library can exist.
type UnsupportedPlatformError struct {
	OS   string
	Arch string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("the current platform (%s/%s) isn't supported by datom", e.OS, e.Arch)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// MissingLibraryError lists every location that was searched.
type MissingLibraryError struct {
	Filename string
	Searched []string
}

func (e *MissingLibraryError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("native library %s not found: no search location available", e.Filename)
	}
	return fmt.Sprintf("native library %s not found, searched: %s", e.Filename, strings.Join(e.Searched, ", "))
}

func (e *MissingLibraryError) Is(target error) bool {
	return target == ErrMissingLibrary
}

// StagingError wraps an I/O failure while copying an embedded library to disk.
type StagingError struct {
	Path string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("failed to stage native library at %q: %v", e.Path, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

func (e *StagingError) Is(target error) bool {
	return target == ErrStaging
}

// LoadError wraps a dynamic loader or symbol binding failure.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load native library %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// ConnectionErrorKind mirrors the native DatomConnectionError enum.
type ConnectionErrorKind int32

const (
	// ConnectionErrorNone means the native side did not record an error.
	ConnectionErrorNone ConnectionErrorKind = iota
	// ConnectionErrorInvalidData means the data store held invalid data.
	ConnectionErrorInvalidData
	// ConnectionErrorIO means the data store hit an I/O error.
	ConnectionErrorIO
	// ConnectionErrorMiscellaneous covers any other data store failure.
	ConnectionErrorMiscellaneous
)

func (k ConnectionErrorKind) String() string {
	switch k {
	case ConnectionErrorNone:
		return "none"
	case ConnectionErrorInvalidData:
		return "invalid data"
	case ConnectionErrorIO:
		return "io error"
	case ConnectionErrorMiscellaneous:
		return "miscellaneous"
	default:
		return fmt.Sprintf("unknown(%d)", int32(k))
	}
}

// ConnectionError is returned when a connection operation fails natively.
type ConnectionError struct {
	Op   string
	Kind ConnectionErrorKind
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %s", e.Op, e.Kind)
}
