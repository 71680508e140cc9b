package datom

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	envNativeDir    = "DATOM_NATIVE_DIR"
	envStagingDir   = "DATOM_STAGING_DIR"
	envStagingCache = "DATOM_STAGING_CACHE"

	defaultLockTimeout = 30 * time.Second
)

var (
	nativesMu         sync.RWMutex
	registeredNatives fs.FS
)

// RegisterNatives installs an embedded tree holding prebuilt libraries laid
// out as natives/<platform>/<arch>/<filename>, typically an embed.FS
// declared with //go:embed natives. It is consulted after the override
// directory. Registering after the library is loaded has no effect.
func RegisterNatives(fsys fs.FS) {
	nativesMu.Lock()
	registeredNatives = fsys
	nativesMu.Unlock()
}

// Option configures the bootstrap. Options are applied on top of the
// environment, so an explicit option wins over DATOM_* variables.
type Option func(*bootstrapConfig) error

type bootstrapConfig struct {
	nativeDir    string
	stagingDir   string
	stagingCache string
	natives      fs.FS
	exeDir       string
	lockTimeout  time.Duration
	goos         string
	goarch       string
	open         func(path string) (uintptr, error)
	close        func(lib uintptr) error
	bind         binder
}

// WithNativeDir points the bootstrap at a directory that directly contains
// the platform's library file. It takes priority over the packaged layout.
func WithNativeDir(dir string) Option {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("native library directory cannot be empty")
		}
		cfg.nativeDir = dir
		return nil
	}
}

// WithStagingDir sets the parent directory for per-process copies of an
// embedded library. Defaults to os.TempDir().
func WithStagingDir(dir string) Option {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("staging directory cannot be empty")
		}
		cfg.stagingDir = dir
		return nil
	}
}

// WithStagingCache stages embedded libraries into a content-addressed cache
// shared by every process using dir, instead of a fresh temporary file.
func WithStagingCache(dir string) Option {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("staging cache directory cannot be empty")
		}
		cfg.stagingCache = dir
		return nil
	}
}

// WithNatives uses fsys as the embedded tree instead of the one installed by
// RegisterNatives.
func WithNatives(fsys fs.FS) Option {
	return func(cfg *bootstrapConfig) error {
		if fsys == nil {
			return fmt.Errorf("natives filesystem cannot be nil")
		}
		cfg.natives = fsys
		return nil
	}
}

// WithExecutableDir overrides the directory searched for an on-disk
// natives/ tree. Defaults to the directory of the running executable.
func WithExecutableDir(dir string) Option {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("executable directory cannot be empty")
		}
		cfg.exeDir = dir
		return nil
	}
}

// WithLockTimeout bounds how long staging waits for another process that
// holds the staging cache lock.
func WithLockTimeout(d time.Duration) Option {
	return func(cfg *bootstrapConfig) error {
		if d <= 0 {
			return fmt.Errorf("lock timeout must be positive, got %s", d)
		}
		cfg.lockTimeout = d
		return nil
	}
}

func withPlatform(goos, goarch string) Option {
	return func(cfg *bootstrapConfig) error {
		cfg.goos = goos
		cfg.goarch = goarch
		return nil
	}
}

func withLibraryOpener(open func(string) (uintptr, error), close func(uintptr) error) Option {
	return func(cfg *bootstrapConfig) error {
		if open == nil || close == nil {
			return fmt.Errorf("library opener cannot be nil")
		}
		cfg.open = open
		cfg.close = close
		return nil
	}
}

func withBinder(bind binder) Option {
	return func(cfg *bootstrapConfig) error {
		if bind == nil {
			return fmt.Errorf("binder cannot be nil")
		}
		cfg.bind = bind
		return nil
	}
}

func resolveBootstrapConfig(opts []Option) (bootstrapConfig, error) {
	nativesMu.RLock()
	natives := registeredNatives
	nativesMu.RUnlock()

	cfg := bootstrapConfig{
		nativeDir:    strings.TrimSpace(os.Getenv(envNativeDir)),
		stagingDir:   strings.TrimSpace(os.Getenv(envStagingDir)),
		stagingCache: strings.TrimSpace(os.Getenv(envStagingCache)),
		natives:      natives,
		lockTimeout:  defaultLockTimeout,
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
		open:         openLibrary,
		close:        closeLibrary,
		bind:         bindBoundary,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return bootstrapConfig{}, err
		}
	}

	if cfg.stagingDir == "" {
		cfg.stagingDir = os.TempDir()
	}
	if cfg.exeDir == "" {
		cfg.exeDir = executableDir()
	}
	return cfg, nil
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		Logger().Debug("cannot resolve executable path; skipping on-disk natives", zap.Error(err))
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

type librarySource int

const (
	sourceOverride librarySource = iota
	sourceEmbedded
	sourceExecutable
)

func (s librarySource) String() string {
	switch s {
	case sourceOverride:
		return "override"
	case sourceEmbedded:
		return "embedded"
	default:
		return "executable"
	}
}

// libraryCandidate is a located library. For embedded sources path is the
// slash-separated name inside the natives filesystem.
type libraryCandidate struct {
	source librarySource
	path   string
}

// locateLibrary walks the search path in priority order and returns the
// first readable library.
func locateLibrary(cfg bootstrapConfig, p Platform) (libraryCandidate, error) {
	filename := p.LibraryFilename()
	var searched []string

	if cfg.nativeDir != "" {
		candidate := filepath.Join(cfg.nativeDir, filename)
		abs, err := libraryInDir(cfg.nativeDir, filename)
		if err == nil {
			return libraryCandidate{source: sourceOverride, path: abs}, nil
		}
		Logger().Debug("override directory has no usable library", zap.String("path", candidate), zap.Error(err))
		searched = append(searched, candidate)
	}

	packaged, ok := p.PackagedPath()
	if !ok {
		// Without an architecture there is no safe packaged location to guess.
		searched = append(searched, path.Join(nativesRoot, p.OS, "<unknown-arch>", filename))
		return libraryCandidate{}, &MissingLibraryError{Filename: filename, Searched: searched}
	}

	if cfg.natives != nil {
		err := validateEmbeddedFile(cfg.natives, packaged)
		if err == nil {
			return libraryCandidate{source: sourceEmbedded, path: packaged}, nil
		}
		Logger().Debug("embedded natives have no usable library", zap.String("path", packaged), zap.Error(err))
		searched = append(searched, "embedded:"+packaged)
	}

	if cfg.exeDir != "" {
		candidate := filepath.Join(cfg.exeDir, filepath.FromSlash(packaged))
		abs, err := libraryInDir(filepath.Dir(candidate), filename)
		if err == nil {
			return libraryCandidate{source: sourceExecutable, path: abs}, nil
		}
		Logger().Debug("executable directory has no usable library", zap.String("path", candidate), zap.Error(err))
		searched = append(searched, candidate)
	}

	return libraryCandidate{}, &MissingLibraryError{Filename: filename, Searched: searched}
}

// libraryInDir checks that dir holds a non-empty regular file named after
// the platform library and returns its absolute path.
func libraryInDir(dir, filename string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("no directory given for %s", filename)
	}
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid library filename %q", filename)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", dir, err)
	}
	candidate := filepath.Join(absDir, filename)

	info, err := os.Stat(candidate)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%s not found in %s", filename, absDir)
	case err != nil:
		return "", fmt.Errorf("failed to stat %s in %s: %w", filename, absDir, err)
	case !info.Mode().IsRegular():
		return "", fmt.Errorf("%s in %s is not a regular file", filename, absDir)
	case info.Size() == 0:
		return "", fmt.Errorf("%s in %s is empty", filename, absDir)
	}
	return candidate, nil
}

func validateEmbeddedFile(fsys fs.FS, name string) error {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("embedded library %q is not a regular file", name)
	}
	if info.Size() == 0 {
		return fmt.Errorf("embedded library %q is empty", name)
	}
	return nil
}

// runBootstrap performs the resolution-and-load sequence. It does not touch
// the package load state.
func runBootstrap(cfg bootstrapConfig) (lib uintptr, b *boundary, libPath string, err error) {
	p, err := resolvePlatform(cfg.goos, cfg.goarch)
	if err != nil {
		return 0, nil, "", err
	}

	candidate, err := locateLibrary(cfg, p)
	if err != nil {
		return 0, nil, "", err
	}

	libPath = candidate.path
	if candidate.source == sourceEmbedded {
		libPath, err = stageEmbedded(cfg, candidate.path, p.LibraryFilename())
		if err != nil {
			return 0, nil, "", err
		}
	}

	log := Logger().With(
		zap.Stringer("platform", p),
		zap.Stringer("source", candidate.source),
		zap.String("path", libPath),
	)
	log.Debug("loading native library")

	lib, err = cfg.open(libPath)
	if err != nil {
		return 0, nil, "", &LoadError{Path: libPath, Err: err}
	}

	b, err = cfg.bind(lib)
	if err != nil {
		if closeErr := cfg.close(lib); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return 0, nil, "", &LoadError{Path: libPath, Err: err}
	}

	log.Info("native library loaded", zap.String("version", b.version()))
	return lib, b, libPath, nil
}
