package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/rulesync/internal/apperr"
	"github.com/starford/rulesync/internal/models"
)

// tmpPrefix names in-flight atomic writes; List skips them.
const tmpPrefix = ".rulesync-tmp-"

// FS implements Provider backed by a local directory.
type FS struct {
	dir    string // absolute path to the store directory
	logger *slog.Logger
}

// NewFS creates a store rooted at dir. The directory does not have to exist;
// it is created on first access.
func NewFS(dir string, logger *slog.Logger) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve dir: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("storage: not a directory: %s", abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{dir: abs, logger: logger}, nil
}

// Dir returns the absolute store directory.
func (f *FS) Dir() string { return f.dir }

func (f *FS) ensureDir() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w: %w", f.dir, apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// rulePath validates name and returns the absolute primary file path.
// Names are plain base names; anything that would leave the store is rejected.
func (f *FS) rulePath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, name), nil
}

// ValidateName reports whether name can be used as a rule name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("storage: %w: %q", apperr.ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("storage: %w: %q contains a path separator", apperr.ErrInvalidName, name)
	case IsMetaFile(name), strings.HasPrefix(name, tmpPrefix):
		return fmt.Errorf("storage: %w: %q is a reserved name", apperr.ErrInvalidName, name)
	}
	return nil
}

// IsMetaFile reports whether name is a sidecar metadata file.
func IsMetaFile(name string) bool {
	return strings.HasSuffix(name, models.MetaSuffix)
}

// List returns all rules in the store directory.
func (f *FS) List() ([]models.Rule, error) {
	if err := f.ensureDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w: %w", f.dir, apperr.ErrStoreUnavailable, err)
	}
	out := make([]models.Rule, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if IsMetaFile(name) || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		p := filepath.Join(f.dir, name)
		// Stat follows symlinks, so a linked rule file is listed like a regular one.
		info, err := os.Stat(p)
		if err != nil {
			f.logger.Warn("storage: stat failed", slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, f.load(name, p, info))
	}
	return out, nil
}

// Get returns a single rule by name.
func (f *FS) Get(name string) (models.Rule, bool, error) {
	p, err := f.rulePath(name)
	if err != nil {
		return models.Rule{}, false, err
	}
	if err := f.ensureDir(); err != nil {
		return models.Rule{}, false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return models.Rule{}, false, nil
	}
	if err != nil {
		return models.Rule{}, false, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return models.Rule{}, false, nil
	}
	return f.load(name, p, info), true, nil
}

// load builds a Rule from its primary file info and sidecar. A missing or
// unreadable sidecar yields empty metadata.
func (f *FS) load(name, p string, info os.FileInfo) models.Rule {
	r := models.Rule{
		Name:         name,
		Path:         p,
		LastModified: info.ModTime(),
	}
	meta, err := readMeta(p + models.MetaSuffix)
	if err != nil {
		f.logger.Warn("storage: metadata ignored",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return r
	}
	meta.Apply(&r)
	return r
}

func readMeta(metaPath string) (models.Metadata, error) {
	var m models.Metadata
	data, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("read %s: %w", filepath.Base(metaPath), err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Metadata{}, fmt.Errorf("%w: %s: %w", apperr.ErrMetadataCorrupt, filepath.Base(metaPath), err)
	}
	return m, nil
}

// Save writes the content file and then the sidecar. A failure writing the
// sidecar leaves the content already in place.
func (f *FS) Save(rule models.Rule, content []byte) error {
	p, err := f.rulePath(rule.Name)
	if err != nil {
		return err
	}
	if err := f.ensureDir(); err != nil {
		return err
	}
	if err := writeAtomic(p, content); err != nil {
		return fmt.Errorf("storage: save %s: %w", rule.Name, err)
	}
	meta, err := json.MarshalIndent(models.MetadataOf(rule), "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode metadata %s: %w", rule.Name, err)
	}
	if err := writeAtomic(p+models.MetaSuffix, meta); err != nil {
		return fmt.Errorf("storage: save metadata %s: %w", rule.Name, err)
	}
	return nil
}

// Delete removes a rule's primary file and sidecar.
func (f *FS) Delete(name string) error {
	p, err := f.rulePath(name)
	if err != nil {
		return err
	}
	if err := f.ensureDir(); err != nil {
		return err
	}
	for _, target := range []string{p, p + models.MetaSuffix} {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", filepath.Base(target), err)
		}
	}
	return nil
}

// ReadContent returns the content of the primary file as text.
func (f *FS) ReadContent(name string) (string, error) {
	p, err := f.rulePath(name)
	if err != nil {
		return "", err
	}
	if err := f.ensureDir(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: read %s: %w", name, err)
	}
	return string(data), nil
}

// CopyFile copies src into dstDir under its base name, creating dstDir if
// needed and replacing any existing file. It returns the destination path.
func CopyFile(src, dstDir string) (string, error) {
	name := filepath.Base(src)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("storage: copy %s: %w: %w", name, apperr.ErrCopyFailed, err)
	}
	defer in.Close()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: copy %s: %w: %w", name, apperr.ErrCopyFailed, err)
	}
	dst := filepath.Join(dstDir, name)
	if err := writeAtomicFrom(dst, in); err != nil {
		return "", fmt.Errorf("storage: copy %s: %w: %w", name, apperr.ErrCopyFailed, err)
	}
	return dst, nil
}

func writeAtomic(path string, content []byte) error {
	return writeAtomicFrom(path, bytes.NewReader(content))
}

// writeAtomicFrom streams r into path: tmp file → fsync → rename.
func writeAtomicFrom(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}
