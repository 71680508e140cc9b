package datom

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const lockPollInterval = 50 * time.Millisecond

var (
	stagedMu   sync.Mutex
	stagedDirs []string
)

// stageEmbedded copies the embedded library name to a real file so the
// dynamic loader can open it, and returns that file's path.
func stageEmbedded(cfg bootstrapConfig, name, filename string) (string, error) {
	if cfg.stagingCache != "" {
		return stageIntoCache(cfg.natives, name, filename, cfg.stagingCache, cfg.lockTimeout)
	}
	return stageIntoTemp(cfg.natives, name, filename, cfg.stagingDir)
}

// stageIntoTemp writes the library into a fresh directory under parent. The
// directory lives until CleanupStaged is called.
func stageIntoTemp(fsys fs.FS, name, filename, parent string) (string, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", &StagingError{Path: parent, Err: err}
	}
	dir, err := os.MkdirTemp(parent, "datom-native-*")
	if err != nil {
		return "", &StagingError{Path: parent, Err: err}
	}

	target := filepath.Join(dir, filename)
	if _, err := copyEmbedded(fsys, name, target); err != nil {
		_ = os.RemoveAll(dir)
		return "", &StagingError{Path: target, Err: err}
	}

	stagedMu.Lock()
	stagedDirs = append(stagedDirs, dir)
	stagedMu.Unlock()

	Logger().Debug("staged embedded native library", zap.String("path", target))
	return target, nil
}

// stageIntoCache writes the library under cacheDir/<sha256 prefix>/ once and
// reuses it in later processes. Writers are serialized by a file lock.
func stageIntoCache(fsys fs.FS, name, filename, cacheDir string, lockTimeout time.Duration) (string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", &StagingError{Path: name, Err: err}
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := digest[:16]

	dir := filepath.Join(cacheDir, key)
	target := filepath.Join(dir, filename)
	if cachedLibraryMatches(target, digest) {
		return target, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StagingError{Path: dir, Err: err}
	}

	lockPath := filepath.Join(cacheDir, ".locks", key+".lock")
	err = withProcessFileLock(lockPath, lockTimeout, func() error {
		if cachedLibraryMatches(target, digest) {
			return nil
		}
		return writeFileAtomic(target, data)
	})
	if err != nil {
		return "", &StagingError{Path: target, Err: err}
	}

	Logger().Debug("staged embedded native library in cache", zap.String("path", target), zap.String("sha256", digest))
	return target, nil
}

func cachedLibraryMatches(path, digest string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false
	}
	return hex.EncodeToString(hasher.Sum(nil)) == digest
}

func copyEmbedded(fsys fs.FS, name, target string) (written int64, err error) {
	src, err := fsys.Open(name)
	if err != nil {
		return 0, fmt.Errorf("failed to open embedded library %q: %w", name, err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := dst.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	written, err = io.Copy(dst, src)
	if err != nil {
		return written, fmt.Errorf("failed to copy embedded library %q: %w", name, err)
	}
	if written == 0 {
		return 0, fmt.Errorf("embedded library %q is empty", name)
	}
	return written, nil
}

func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o755); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return err
	}
	success = true
	return nil
}

func withProcessFileLock(lockPath string, timeout time.Duration, fn func() error) (err error) {
	if fn == nil {
		return fmt.Errorf("lock callback cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory for %q: %w", lockPath, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %q: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, lockErr := tryLockFile(file)
		if lockErr != nil {
			_ = file.Close()
			return fmt.Errorf("failed to acquire lock %q: %w", lockPath, lockErr)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return fmt.Errorf("timed out after %s waiting for lock %q", timeout, lockPath)
		}
		time.Sleep(lockPollInterval)
	}

	defer func() {
		unlockErr := unlockFile(file)
		closeErr := file.Close()
		err = errors.Join(err, unlockErr, closeErr)
	}()

	return fn()
}

// CleanupStaged removes the temporary copies of embedded libraries made by
// this process. It is best effort: on Windows a loaded DLL cannot be removed
// until the process exits. Cache entries made with WithStagingCache are kept.
func CleanupStaged() error {
	stagedMu.Lock()
	dirs := stagedDirs
	stagedDirs = nil
	stagedMu.Unlock()

	var err error
	for _, dir := range dirs {
		if removeErr := os.RemoveAll(dir); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
	}
	return err
}
