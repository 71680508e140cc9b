package datom

import (
	"path"
	"runtime"
)

// LibraryBaseName is the platform-neutral name of the native library.
const LibraryBaseName = "datom_c"

// nativesRoot is the top-level directory of the packaged layout.
const nativesRoot = "natives"

// Platform identifies the host the native library is built for.
// OS is one of "windows", "macos" or "linux"; Arch is the architecture
// identifier reported by the Go runtime (for example amd64 or arm64).
type Platform struct {
	OS   string
	Arch string
}

// ResolvePlatform returns the descriptor for the running process.
func ResolvePlatform() (Platform, error) {
	return resolvePlatform(runtime.GOOS, runtime.GOARCH)
}

func resolvePlatform(goos, goarch string) (Platform, error) {
	switch goos {
	case "windows":
		return Platform{OS: "windows", Arch: goarch}, nil
	case "darwin":
		return Platform{OS: "macos", Arch: goarch}, nil
	case "linux":
		return Platform{OS: "linux", Arch: goarch}, nil
	}
	return Platform{}, &UnsupportedPlatformError{OS: goos, Arch: goarch}
}

// LibraryFilename returns the file name of the native library following the
// platform's shared-library conventions.
func (p Platform) LibraryFilename() string {
	switch p.OS {
	case "windows":
		return LibraryBaseName + ".dll"
	case "macos":
		return "lib" + LibraryBaseName + ".dylib"
	default:
		return "lib" + LibraryBaseName + ".so"
	}
}

// PackagedPath returns the slash-separated location of the library inside the
// packaged layout: natives/<platform>/<arch>/<filename>.
// It returns false when the architecture is unknown.
func (p Platform) PackagedPath() (string, bool) {
	if p.Arch == "" {
		return "", false
	}
	return path.Join(nativesRoot, p.OS, p.Arch, p.LibraryFilename()), true
}

func (p Platform) String() string {
	if p.Arch == "" {
		return p.OS
	}
	return p.OS + "/" + p.Arch
}
