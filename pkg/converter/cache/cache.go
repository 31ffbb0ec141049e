// Package cache keeps an on-disk index of rendered diagrams so unchanged
// sources can skip the external converter on the next run.
package cache

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the index file written into the output directory.
const FileName = ".diagramconverter.cache"

// SchemaVersion is bumped whenever Entry or the file layout changes incompatibly.
const SchemaVersion = "1.0"

const (
	FormatGob     = "gob"
	FormatJSON    = "json"
	DefaultFormat = FormatGob
)

var (
	// ErrLoad is returned for index files that exist but cannot be opened.
	// Undecodable or stale files are not errors; they load as an empty index.
	ErrLoad = errors.New("failed to load cache index")

	// ErrPersist is returned when the index cannot be written back.
	ErrPersist = errors.New("failed to persist cache index")
)

// Entry is the stored state of one rendered diagram.
type Entry struct {
	SourceModTime time.Time `json:"sourceModTime"`
	SourceHash    string    `json:"sourceHash"`
	ConfigHash    string    `json:"configHash"`
	OutputHash    string    `json:"outputHash"`
}

type header struct {
	SchemaVersion string `json:"schemaVersion"`
	AppVersion    string `json:"appVersion"`
}

type jsonFile struct {
	Header header           `json:"header"`
	Index  map[string]Entry `json:"index"`
}

// FileIndex is a file-backed render index. Check and Update are safe for
// concurrent use by workers once Load has returned.
type FileIndex struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	logger     *slog.Logger
	appVersion string
	format     string
}

// NewFileIndex creates an empty index. An unknown format falls back to gob.
// Entries written by a different non-dev appVersion are discarded on Load.
func NewFileIndex(loggerHandler slog.Handler, appVersion, format string) *FileIndex {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	format = strings.ToLower(format)
	if format != FormatJSON && format != FormatGob {
		format = DefaultFormat
	}
	if appVersion == "" {
		appVersion = "dev"
	}
	return &FileIndex{
		entries:    make(map[string]Entry),
		logger:     slog.New(loggerHandler).With(slog.String("component", "cache"), slog.String("format", format)),
		appVersion: appVersion,
		format:     format,
	}
}

// Format returns the serialization format in use.
func (c *FileIndex) Format() string { return c.format }

// Len returns the number of entries held in memory.
func (c *FileIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load replaces the in-memory index with the contents of path.
func (c *FileIndex) Load(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("No cache index yet", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	defer f.Close()

	hdr, loaded, err := c.decode(f)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.logger.Warn("Cache index is empty or truncated, starting fresh", slog.String("path", path))
		} else {
			c.logger.Warn("Cache index unreadable, starting fresh", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}
	if hdr.SchemaVersion != SchemaVersion {
		c.logger.Warn("Cache schema changed, starting fresh", slog.String("found", hdr.SchemaVersion), slog.String("want", SchemaVersion))
		return nil
	}
	if !versionsCompatible(hdr.AppVersion, c.appVersion) {
		c.logger.Warn("Cache written by another version, starting fresh", slog.String("found", hdr.AppVersion), slog.String("running", c.appVersion))
		return nil
	}
	if loaded != nil {
		c.entries = loaded
	}
	c.logger.Debug("Cache index loaded", slog.String("path", path), slog.Int("entries", len(c.entries)))
	return nil
}

func (c *FileIndex) decode(r io.Reader) (header, map[string]Entry, error) {
	if c.format == FormatJSON {
		var data jsonFile
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return header{}, nil, err
		}
		return data.Header, data.Index, nil
	}
	dec := gob.NewDecoder(r)
	var hdr header
	if err := dec.Decode(&hdr); err != nil {
		return header{}, nil, err
	}
	var entries map[string]Entry
	if err := dec.Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return hdr, nil, nil
		}
		return header{}, nil, err
	}
	return hdr, entries, nil
}

// Check reports a hit when key exists with identical modTime, source hash and
// config hash. On a hit the stored output hash is returned.
func (c *FileIndex) Check(key string, modTime time.Time, contentHash, configHash string) (bool, string) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	switch {
	case !ok:
		return false, ""
	case !entry.SourceModTime.Equal(modTime), entry.SourceHash != contentHash:
		c.logger.Debug("Cache miss: source changed", slog.String("key", key))
		return false, ""
	case entry.ConfigHash != configHash:
		c.logger.Debug("Cache miss: render settings changed", slog.String("key", key))
		return false, ""
	}
	return true, entry.OutputHash
}

// Update records the state of a freshly rendered diagram.
func (c *FileIndex) Update(key string, modTime time.Time, sourceHash, configHash, outputHash string) error {
	c.mu.Lock()
	c.entries[key] = Entry{
		SourceModTime: modTime,
		SourceHash:    sourceHash,
		ConfigHash:    configHash,
		OutputHash:    outputHash,
	}
	c.mu.Unlock()
	return nil
}

// Persist writes the index to path through a temp file and rename, so readers
// never see a partial file. An empty index removes path instead.
func (c *FileIndex) Persist(path string) error {
	c.mu.RLock()
	snapshot := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	if len(snapshot) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Could not remove empty cache index", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, dir, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	hdr := header{SchemaVersion: SchemaVersion, AppVersion: c.appVersion}
	if err := c.encode(tmp, hdr, snapshot); err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersist, c.format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename to %s: %w", ErrPersist, path, err)
	}
	committed = true
	c.logger.Debug("Cache index persisted", slog.String("path", path), slog.Int("entries", len(snapshot)))
	return nil
}

func (c *FileIndex) encode(w io.Writer, hdr header, entries map[string]Entry) error {
	if c.format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonFile{Header: hdr, Index: entries})
	}
	enc := gob.NewEncoder(w)
	if err := enc.Encode(hdr); err != nil {
		return err
	}
	return enc.Encode(entries)
}

// dev builds accept each other's indexes; release builds only their own.
func versionsCompatible(found, running string) bool {
	return found == running || found == "dev" || running == "dev"
}
