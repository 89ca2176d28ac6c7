package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"

	"github.com/HITGYA/Mit-6.830/common"
	"github.com/HITGYA/Mit-6.830/storage"
)

// Catalog keeps track of every table in the database: its schema, primary key and backing heap
// file. The table metadata is serialized as a single JSON blob through a PersistenceProvider; heap
// files live next to it as <root>/<table>.dat and are opened on first use.
//
// The catalog only grows or shrinks through AddTable, LoadSchema and DropTable. Callers must not drop
// a table while a transaction is still reading it.
type Catalog struct {
	mu sync.RWMutex
	catalogState

	provider PersistenceProvider
	rootPath string

	// In-memory structures for fast lookups
	tableMap  map[string]*Table // TableName -> Table
	byID      btree.Map[common.ObjectID, *Table]
	columnMap map[string][]*Table // ColumnName -> List of Tables containing this column

	files *xsync.MapOf[common.ObjectID, *storage.HeapFile]
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name string      `json:"name"`
	Type common.Type `json:"type"`
}

// Table is the primary metadata structure. It groups columns under a unique ObjectID.
type Table struct {
	Oid        common.ObjectID `json:"oid"`
	Name       string          `json:"name"`
	Columns    []Column        `json:"columns"`
	PrimaryKey string          `json:"primary_key,omitempty"`

	desc *storage.TupleDesc
}

// PersistenceProvider abstracts how the catalog is saved to and loaded from disk.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// TupleDesc returns the schema of the table's tuples.
func (t *Table) TupleDesc() *storage.TupleDesc {
	if t.desc == nil {
		types := make([]common.Type, len(t.Columns))
		names := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			types[i] = c.Type
			names[i] = c.Name
		}
		t.desc = storage.NewTupleDesc(types, names)
	}
	return t.desc
}

type catalogState struct {
	NextId uint32   `json:"next_id"`
	Tables []*Table `json:"tables"`
}

func (c *Catalog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, _ := json.MarshalIndent(c.catalogState, "", "  ")
	return string(b)
}

func (c *Catalog) toJSON() (string, error) {
	b, err := json.MarshalIndent(c.catalogState, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Catalog) fromJSON(jsonData string) error {
	if err := json.Unmarshal([]byte(jsonData), &c.catalogState); err != nil {
		return err
	}
	for _, t := range c.Tables {
		c.index(t)
	}
	return nil
}

func (c *Catalog) index(t *Table) {
	t.TupleDesc()
	c.tableMap[t.Name] = t
	c.byID.Set(t.Oid, t)
	for _, f := range t.Columns {
		c.columnMap[f.Name] = append(c.columnMap[f.Name], t)
	}
}

// NewCatalog initializes a catalog whose heap files live under rootPath. It attempts to load
// existing state from the provider; if no state exists, it starts with an empty database.
func NewCatalog(provider PersistenceProvider, rootPath string) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			NextId: 0,
			Tables: make([]*Table, 0),
		},
		provider:  provider,
		rootPath:  rootPath,
		tableMap:  make(map[string]*Table),
		columnMap: make(map[string][]*Table),
		files:     xsync.NewMapOf[common.ObjectID, *storage.HeapFile](),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		// Start from scratch
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err = result.fromJSON(jsonData); err != nil {
		// Parsing errors are fatal system errors, usually indicating corruption
		return nil, pkgerrors.Wrap(err, "failed to parse catalog state")
	}

	return result, nil
}

// AddTable registers a new table in the catalog. It assigns a globally unique ObjectID to the table
// and persists the updated state. If a table with that name already exists, it returns
// DuplicateObjectError. primaryKey may be empty; otherwise it must name one of the columns.
func (c *Catalog) AddTable(tableName string, columns []Column, primaryKey string) (*Table, error) {
	if len(columns) == 0 {
		return nil, common.NewError(common.SchemaMismatchError, "table '%s' needs at least one column", tableName)
	}
	if primaryKey != "" && !hasColumn(columns, primaryKey) {
		return nil, common.NewError(common.NoSuchObjectError, "primary key '%s' is not a column of '%s'", primaryKey, tableName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.GoDBError{
			Code:      common.DuplicateObjectError,
			ErrString: fmt.Sprintf("table '%s' already exists", tableName),
		}
	}

	// oid 0 is reserved for INVALID
	c.NextId++

	t := &Table{
		Oid:        common.ObjectID(c.NextId),
		Name:       tableName,
		Columns:    columns,
		PrimaryKey: primaryKey,
	}
	c.Tables = append(c.Tables, t)
	c.index(t)

	return t, c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	jsonData, err := c.toJSON()
	if err != nil {
		return err
	}
	return c.provider.SaveCatalogState(jsonData)
}

func hasColumn(columns []Column, name string) bool {
	for _, col := range columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// DropTable removes a table from the catalog, closes its heap file and deletes it from disk.
func (c *Catalog) DropTable(tableName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tableMap[tableName]
	if !ok {
		return common.NewError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}

	delete(c.tableMap, tableName)
	c.byID.Delete(t.Oid)
	for _, col := range t.Columns {
		c.columnMap[col.Name] = removeTable(c.columnMap[col.Name], t)
		if len(c.columnMap[col.Name]) == 0 {
			delete(c.columnMap, col.Name)
		}
	}
	c.Tables = removeTable(c.Tables, t)

	if file, loaded := c.files.LoadAndDelete(t.Oid); loaded {
		// Deletion goes ahead even if the handle fails to close.
		_ = file.Close()
	}
	if err := os.Remove(c.tablePath(t)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pkgerrors.Wrapf(err, "remove heap file of '%s'", tableName)
	}
	return c.saveLocked()
}

func removeTable(tables []*Table, t *Table) []*Table {
	out := tables[:0]
	for _, other := range tables {
		if other != t {
			out = append(out, other)
		}
	}
	return out
}

// GetTableMetadata fetches the schema for a specific table name.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.GoDBError{
			Code:      common.NoSuchObjectError,
			ErrString: fmt.Sprintf("table '%s' does not exist", tableName),
		}
	}
	return table, nil
}

// TableByID fetches a table by its ObjectID.
func (c *Catalog) TableByID(oid common.ObjectID) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID.Get(oid)
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "no table with id %d", oid)
	}
	return t, nil
}

func (c *Catalog) TableName(oid common.ObjectID) (string, error) {
	t, err := c.TableByID(oid)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// PrimaryKey returns the name of the table's primary key column, or "" if it has none.
func (c *Catalog) PrimaryKey(oid common.ObjectID) (string, error) {
	t, err := c.TableByID(oid)
	if err != nil {
		return "", err
	}
	return t.PrimaryKey, nil
}

// TableIDs returns the ids of every table in ascending order.
func (c *Catalog) TableIDs() []common.ObjectID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID.Keys()
}

// FindTablesWithColumnName returns all tables that contain a column with the given name.
func (c *Catalog) FindTablesWithColumnName(columnName string) []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Table(nil), c.columnMap[columnName]...)
}

// TupleDescOf returns the schema of table oid.
func (c *Catalog) TupleDescOf(oid common.ObjectID) (*storage.TupleDesc, error) {
	t, err := c.TableByID(oid)
	if err != nil {
		return nil, err
	}
	return t.TupleDesc(), nil
}

func (c *Catalog) tablePath(t *Table) string {
	return filepath.Join(c.rootPath, t.Name+".dat")
}

// FileOf returns the heap file backing table oid, opening it on first use. Only one HeapFile
// exists per table.
func (c *Catalog) FileOf(oid common.ObjectID) (*storage.HeapFile, error) {
	if file, ok := c.files.Load(oid); ok {
		return file, nil
	}

	t, err := c.TableByID(oid)
	if err != nil {
		return nil, err
	}
	newFile, err := storage.NewHeapFile(t.Oid, c.tablePath(t), t.TupleDesc())
	if err != nil {
		return nil, err
	}

	actualFile, loaded := c.files.LoadOrStore(oid, newFile)
	if loaded {
		// Another goroutine opened the file first; use theirs.
		_ = newFile.Close()
		return actualFile, nil
	}
	return newFile, nil
}

// Close closes every open heap file.
func (c *Catalog) Close() error {
	var firstErr error
	c.files.Range(func(oid common.ObjectID, file *storage.HeapFile) bool {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.files.Delete(oid)
		return true
	})
	return firstErr
}

const CatalogFileName = "catalog.json"

type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	path := filepath.Join(dcm.rootPath, CatalogFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err // Let the caller (Catalog) handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface. The state is written to a
// temporary file and renamed into place.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return pkgerrors.Wrap(err, "write catalog")
	}
	return pkgerrors.Wrap(os.Rename(tmpPath, finalPath), "install catalog")
}
