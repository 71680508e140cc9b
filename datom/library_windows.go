//go:build windows

package datom

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func openLibrary(path string) (uintptr, error) {
	lib, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	if lib == 0 {
		return 0, fmt.Errorf("LoadLibrary returned a nil handle for %s", path)
	}
	return uintptr(lib), nil
}

func lookupSymbol(lib uintptr, name string) (uintptr, error) {
	proc, err := windows.GetProcAddress(windows.Handle(lib), name)
	if err != nil {
		return 0, err
	}
	return proc, nil
}

func closeLibrary(lib uintptr) error {
	if lib == 0 {
		return nil
	}
	return windows.FreeLibrary(windows.Handle(lib))
}
