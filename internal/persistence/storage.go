package persistence

import (
	"os"
	"path/filepath"

	"github.com/wrangler-run/wrangler/internal/engine/errdefs"
)

const schemaVersion = "1.0.0"

// Storage resolves the definitions and snapshot file paths and performs
// atomic reads/writes against them.
type Storage struct {
	DataDir          string
	DefinitionsPath  string
	SnapshotLoadPath string
	SnapshotSavePath string
}

// NewStorage resolves paths from the environment, honoring DATA_DIR,
// IMPORT_FILE, and EXPORT_FILE overrides. dataDirDefault is used when
// DATA_DIR is unset (typically a platform user-data directory chosen by
// the caller).
func NewStorage(dataDirDefault string) (*Storage, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = dataDirDefault
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errdefs.NewPersistenceError("data_dir", "could not create data directory", err)
	}

	definitionsPath := filepath.Join(dataDir, "processes.wr")
	snapshotPath := filepath.Join(dataDir, "snapshot.wr")

	loadPath := snapshotPath
	if v := os.Getenv("IMPORT_FILE"); v != "" {
		loadPath = v
	}
	savePath := snapshotPath
	if v := os.Getenv("EXPORT_FILE"); v != "" {
		savePath = v
	}

	return &Storage{
		DataDir:          dataDir,
		DefinitionsPath:  definitionsPath,
		SnapshotLoadPath: loadPath,
		SnapshotSavePath: savePath,
	}, nil
}

// LoadDefinitions reads and parses the definitions file. A missing file
// is treated as an empty document rather than an error, so a brand new
// data directory starts with zero processes.
func (s *Storage) LoadDefinitions() (*Document, error) {
	return loadDocument(s.DefinitionsPath)
}

// SaveDefinitions atomically rewrites the definitions file.
func (s *Storage) SaveDefinitions(doc *Document) error {
	return atomicWrite(s.DefinitionsPath, doc)
}

// LoadSnapshot reads and parses the snapshot file (or IMPORT_FILE
// override). A missing file is treated as an empty document.
func (s *Storage) LoadSnapshot() (*Document, error) {
	return loadDocument(s.SnapshotLoadPath)
}

// SaveSnapshot atomically rewrites the snapshot file (or EXPORT_FILE
// override).
func (s *Storage) SaveSnapshot(doc *Document) error {
	return atomicWrite(s.SnapshotSavePath, doc)
}

func loadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Version: schemaVersion}, nil
		}
		return nil, errdefs.NewPersistenceError(path, "could not read file", err)
	}
	doc, err := Parse(string(data))
	if err != nil {
		return nil, errdefs.NewPersistenceError(path, err.Error(), err)
	}
	return doc, nil
}

// atomicWrite writes doc to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a truncated
// or partially written file in place.
func atomicWrite(path string, doc *Document) error {
	if doc.Version == "" {
		doc.Version = schemaVersion
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errdefs.NewPersistenceError(path, "could not create temp file", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.WriteString(Render(doc))
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName)
		return errdefs.NewPersistenceError(path, "could not write temp file", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return errdefs.NewPersistenceError(path, "could not close temp file", closeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errdefs.NewPersistenceError(path, "could not rename temp file into place", err)
	}
	return nil
}

// ReadFrom parses a document from an arbitrary path, used by explicit
// import calls that name a file outside the configured snapshot
// location.
func ReadFrom(path string) (*Document, error) {
	return loadDocument(path)
}

// WriteTo atomically writes doc to an arbitrary path, used by explicit
// export calls that name a file outside the configured snapshot
// location.
func WriteTo(path string, doc *Document) error {
	return atomicWrite(path, doc)
}

// DefaultDataDir returns a "wrangler" directory under the platform user
// configuration directory (os.UserConfigDir), or under the temp
// directory if that is unavailable; used when DATA_DIR is not set.
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return filepath.Join(os.TempDir(), "wrangler")
	}
	return filepath.Join(base, "wrangler")
}
