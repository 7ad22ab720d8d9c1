/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package detectionhistory

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/detectionhistory/sqlitefs"
)

const storeVersion = 1
const detectionApplicationID = 1684564339
const discriminator = "type"

// The Store is a central storage for decoded DetectionHistory records. It
// keeps every record of an investigation in a single sqlite database
// together with the runs that produced them and an archive of the original
// files. Views per element type expose the JSON fields as columns for
// plain SQL analysis.
type Store struct {
	conn        *sqlite.Conn
	fs          afero.Fs
	fields      *fieldMap
	insertMutex sync.Mutex
}

var ErrStoreExists = fmt.Errorf("store already exists")
var ErrStoreNotExists = fmt.Errorf("store does not exist")

var schemaSetup sync.Once // nolint:gochecknoglobals

// New creates a new Store.
func New(url string) (*Store, error) {
	return open(url, true)
}

// Open opens an existing Store.
func Open(url string) (*Store, error) {
	return open(url, false)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	_, err = stmt.Step()
	if err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare("PRAGMA " + name + " = " + fmt.Sprint(i))
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*Store, error) { // nolint:gocyclo,funlen
	schemaSetup.Do(setupSchemaValidation)

	if url != ":memory:" {
		url = strings.TrimRight(url, "/")

		exists := true
		_, err := os.Stat(url)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}

		if create && exists {
			return nil, ErrStoreExists
		}
		if !create && !exists {
			return nil, ErrStoreNotExists
		}

		if create {
			err = os.MkdirAll(path.Dir(url), 0750)
			if err != nil {
				return nil, err
			}

			log.Printf("Creating store %s", url)
			_, err := os.Create(url)
			if err != nil {
				return nil, err
			}
		}
	}

	store := &Store{}

	var err error
	store.conn, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}

	store.fs, err = sqlitefs.NewConn(store.conn)
	if err != nil {
		return nil, err
	}

	if create {
		err = setPragma(store.conn, "application_id", detectionApplicationID)
		if err != nil {
			return nil, err
		}

		err = setPragma(store.conn, "user_version", storeVersion)
		if err != nil {
			return nil, err
		}

		err = store.exec("CREATE VIRTUAL TABLE `records` " +
			"USING fts5(id UNINDEXED, json, insert_time UNINDEXED, tokenize=\"unicode61 tokenchars '/.-'\")")
		if err != nil {
			return nil, err
		}
	} else {
		applicationID, err := pragma(store.conn, "application_id")
		if err != nil {
			return nil, err
		}
		if applicationID != detectionApplicationID {
			msg := "wrong file format (application_id is %d, requires %d)"
			return nil, fmt.Errorf(msg, applicationID, detectionApplicationID)
		}

		version, err := pragma(store.conn, "user_version")
		if err != nil {
			return nil, err
		}
		if version != storeVersion {
			msg := "wrong file format (user_version is %d, requires %d)"
			return nil, fmt.Errorf(msg, version, storeVersion)
		}
	}

	store.fields = newFieldMap()
	err = store.setupFields()
	if err != nil {
		return nil, err
	}

	return store, nil
}

/* ################################
#   API
################################ */

// InsertRecord stores the decoded record of a single DetectionHistory file
// as a detection element. A non nil original links the element to the
// preserved file in the store archive.
func (store *Store) InsertRecord(artifact Artifact, rec *Record, original *OriginalFile) (string, error) {
	element := NewRecord()
	element.Set("id", "detection--"+uuid.New().String())
	element.Set(discriminator, "detection")
	element.Set("name", artifact.Name)
	element.Set("source_path", artifact.Path)
	if original != nil {
		element.Set("original_path", original.Path)
		element.Set("size", original.Size)
		element.Set("hashes", original.Hashes)
	}
	for _, name := range rec.Names() {
		value, _ := rec.Get(name)
		element.Set(name, value)
	}

	b, err := json.Marshal(element)
	if err != nil {
		return "", err
	}
	return store.Insert(b)
}

// OriginalFile describes a raw DetectionHistory file preserved in the
// store archive.
type OriginalFile struct {
	Path   string
	Size   int64
	Hashes map[string]string
}

// ArchiveFile preserves a verbatim copy of the file at srcPath in the
// store archive under originals/<name>.
func (store *Store) ArchiveFile(srcFS afero.Fs, srcPath, name string) (*OriginalFile, error) {
	src, err := srcFS.Open(srcPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// the connection handles a single operation at a time
	store.insertMutex.Lock()
	defer store.insertMutex.Unlock()

	archivePath, dest, err := store.storeFile(path.Join("originals", name))
	if err != nil {
		return nil, err
	}

	md5hash, sha1hash := md5.New(), sha1.New() // #nosec
	n, err := io.Copy(io.MultiWriter(dest, md5hash, sha1hash), src)
	if err != nil {
		dest.Close() // nolint:errcheck
		return nil, err
	}
	if err := dest.Close(); err != nil {
		return nil, err
	}

	return &OriginalFile{
		Path: strings.TrimLeft(archivePath, "/"),
		Size: n,
		Hashes: map[string]string{
			"MD5":   fmt.Sprintf("%x", md5hash.Sum(nil)),
			"SHA-1": fmt.Sprintf("%x", sha1hash.Sum(nil)),
		},
	}, nil
}

// StoreFile adds a file to the store archive. If the path is taken a
// counting suffix is added to the name. The returned file must be closed
// before the store is used again.
func (store *Store) StoreFile(filePath string) (archivePath string, file io.WriteCloser, err error) {
	return store.storeFile(filePath)
}

func (store *Store) storeFile(filePath string) (string, io.WriteCloser, error) {
	err := store.fs.MkdirAll(path.Dir(filePath), 0755)
	if err != nil {
		return "", nil, err
	}

	i := 0
	ext := path.Ext(filePath)
	archivePath := filePath
	base := filePath[:len(filePath)-len(ext)]

	exists, err := afero.Exists(store.fs, archivePath)
	if err != nil {
		return "", nil, err
	}
	for exists {
		archivePath = fmt.Sprintf("%s_%d%s", base, i, ext)
		i++
		exists, err = afero.Exists(store.fs, archivePath)
		if err != nil {
			return "", nil, err
		}
	}

	file, err := store.fs.Create(archivePath)
	return archivePath, file, err
}

// LoadFile opens a file from the store archive.
func (store *Store) LoadFile(filePath string) (io.ReadCloser, error) {
	return store.fs.Open(filePath)
}

// StoreSink feeds decoded records into a Store. With Archive set the raw
// input files are preserved in the store archive.
type StoreSink struct {
	Store   *Store
	FS      afero.Fs
	Archive bool
}

func (s StoreSink) Insert(artifact Artifact, rec *Record) error {
	var original *OriginalFile
	if s.Archive {
		var err error
		original, err = s.Store.ArchiveFile(s.FS, artifact.Path, artifact.Name)
		if err != nil {
			return err
		}
	}
	_, err := s.Store.InsertRecord(artifact, rec, original)
	return err
}

// Insert adds a single element.
func (store *Store) Insert(element JSONRecord) (string, error) {
	// validate element
	valErr, err := validateSchema(element)
	if err != nil {
		return "", errors.Wrap(err, "validation failed")
	}
	if len(valErr) > 0 {
		return "", fmt.Errorf("element could not be validated [%s]", strings.Join(valErr, ","))
	}

	// unmarshal element
	fields := Element{}
	err = json.Unmarshal(element, &fields)
	if err != nil {
		return "", err
	}

	elementType, ok := fields[discriminator]
	if !ok {
		return "", errors.New("element requires type")
	}
	if _, ok := fields[elementType.(string)]; ok {
		return "", fmt.Errorf("element must not contain a field '%s'", elementType)
	}
	id, ok := fields["id"]
	if !ok {
		id = elementType.(string) + "--" + uuid.New().String()
		fields["id"] = id

		element, err = json.Marshal(fields)
		if err != nil {
			return "", err
		}
	}

	store.fields.addAll(elementType.(string), fields)

	// the connection handles a single statement at a time
	store.insertMutex.Lock()
	defer store.insertMutex.Unlock()

	query := "INSERT INTO `records` (id, json, insert_time) VALUES ($id, $json, $time)"
	stmt, err := store.conn.Prepare(query)
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("could not prepare statement %s", query))
	}
	stmt.SetText("$id", id.(string))
	stmt.SetText("$json", string(element))
	stmt.SetText("$time", time.Now().Format("2006-01-02T15:04:05.000Z"))
	_, err = stmt.Step()
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprint("could not exec statement", query))
	}

	return id.(string), nil
}

// InsertBatch adds a set of elements.
func (store *Store) InsertBatch(elements []JSONRecord) ([]string, error) {
	if len(elements) == 0 {
		return nil, nil
	}
	var ids []string
	for _, element := range elements {
		id, err := store.Insert(element)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InsertStruct converts a Go struct to a map and inserts it.
func (store *Store) InsertStruct(element interface{}) (string, error) {
	ids, err := store.InsertStructBatch([]interface{}{element})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertStructBatch adds a list of structs to the store.
func (store *Store) InsertStructBatch(elements []interface{}) ([]string, error) {
	var ms []JSONRecord
	for _, element := range elements {
		m := structs.Map(element)
		m = lower(m).(map[string]interface{})
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		ms = append(ms, b)
	}

	return store.InsertBatch(ms)
}

// Get retreives a single element.
func (store *Store) Get(id string) (element JSONRecord, err error) {
	stmt, err := store.conn.Prepare("SELECT json FROM `records` WHERE id=?")
	if err != nil {
		return nil, err
	}

	stmt.BindText(1, id)

	elements, err := store.rowsToRecords(stmt)
	if err != nil {
		return nil, err
	}
	if len(elements) > 0 {
		return elements[0], nil
	}
	return nil, errors.New("element does not exist")
}

// Query executes a sql query.
func (store *Store) Query(query string) (elements []JSONRecord, err error) {
	stmt, err := store.conn.Prepare(query)
	if err != nil {
		return nil, err
	}

	return store.rowsToRecords(stmt)
}

// Select retrieves all elements matching the given conditions.
func (store *Store) Select(conditions []map[string]string) (elements []JSONRecord, err error) {
	var ors []string
	for _, condition := range conditions {
		var ands []string
		for key, value := range condition {
			ands = append(ands, fmt.Sprintf("json_extract(json, '$.%s') LIKE '%s'", key, value))
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := "SELECT json FROM \"records\""
	if len(ors) > 0 {
		query += fmt.Sprintf(" WHERE %s", strings.Join(ors, " OR ")) // #nosec
	}

	stmt, err := store.conn.Prepare(query) // #nosec
	if err != nil {
		return nil, err
	}

	return store.rowsToRecords(stmt)
}

// Search runs a full text search over all elements.
func (store *Store) Search(q string) (elements []JSONRecord, err error) {
	stmt, err := store.conn.Prepare("SELECT json FROM records WHERE records = $query")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$query", q)
	return store.rowsToRecords(stmt)
}

// All returns every element.
func (store *Store) All() (elements []JSONRecord, err error) {
	return store.Select(nil)
}

// Validate checks all stored elements against their schemas and the
// archive against the stored file metadata.
func (store *Store) Validate() (flaws []string, err error) {
	flaws = []string{}
	expectedFiles := map[string]bool{}

	elements, err := store.All()
	if err != nil {
		return nil, err
	}
	for _, element := range elements {
		validationErrors, err := validateSchema(element)
		if err != nil {
			return nil, err
		}
		flaws = append(flaws, validationErrors...)

		fileErrors, elementExpectedFiles, err := store.validateFiles(element)
		if err != nil {
			return nil, err
		}
		flaws = append(flaws, fileErrors...)
		for _, elementExpectedFile := range elementExpectedFiles {
			expectedFiles[elementExpectedFile] = true
		}
	}

	foundFiles := map[string]bool{}
	var additionalFiles []string
	err = afero.Walk(store.fs, "/", func(path string, info os.FileInfo, err error) error {
		path = filepath.ToSlash(path)
		if err != nil || info == nil || info.IsDir() {
			return nil
		}

		foundFiles[path] = true
		if _, ok := expectedFiles[path]; !ok {
			additionalFiles = append(additionalFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(additionalFiles) > 0 {
		flaws = append(flaws, fmt.Sprintf("additional files: ('%s')", strings.Join(additionalFiles, "', '")))
	}

	var missingFiles []string
	for expectedFile := range expectedFiles {
		if _, ok := foundFiles[expectedFile]; !ok {
			missingFiles = append(missingFiles, expectedFile)
		}
	}
	if len(missingFiles) > 0 {
		flaws = append(flaws, fmt.Sprintf("missing files: ('%s')", strings.Join(missingFiles, "', '")))
	}

	return flaws, nil
}

// validateFiles checks the archived file of one element, if any. The
// source_path field points at the investigated machine and is not part
// of the archive.
func (store *Store) validateFiles(element JSONRecord) (flaws []string, expectedFiles []string, err error) { // nolint:gocyclo
	flaws = []string{}

	var fields Element
	if err := json.Unmarshal(element, &fields); err != nil {
		return nil, nil, err
	}

	for field := range fields {
		if !strings.HasSuffix(field, "_path") || field == "source_path" {
			continue
		}
		archivePath, ok := fields[field].(string)
		if !ok {
			continue
		}

		if strings.Contains(archivePath, "..") {
			flaws = append(flaws, fmt.Sprintf("'..' in %s", archivePath))
			continue
		}

		expectedFiles = append(expectedFiles, "/"+archivePath)

		exists, err := afero.Exists(store.fs, archivePath)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}

		if size, ok := fields["size"].(float64); ok {
			info, err := store.fs.Stat(archivePath)
			if err != nil {
				return nil, nil, err
			}
			if int64(size) != info.Size() {
				flaws = append(flaws, fmt.Sprintf("wrong size for %s (is %d, expected %d)", archivePath, info.Size(), int64(size)))
			}
		}

		if hashes, ok := fields["hashes"].(map[string]interface{}); ok {
			hashFlaws, err := store.validateHashes(archivePath, hashes)
			if err != nil {
				return nil, nil, err
			}
			flaws = append(flaws, hashFlaws...)
		}
	}

	return flaws, expectedFiles, nil
}

func (store *Store) validateHashes(archivePath string, hashes map[string]interface{}) (flaws []string, err error) {
	for algorithm, value := range hashes {
		var h hash.Hash
		switch algorithm {
		case "MD5":
			h = md5.New() // #nosec
		case "SHA1", "SHA-1":
			h = sha1.New() // #nosec
		default:
			flaws = append(flaws, fmt.Sprintf("unsupported hash %s for %s", algorithm, archivePath))
			continue
		}

		f, err := store.fs.Open(archivePath)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(h, f)
		f.Close() // nolint:errcheck
		if err != nil {
			return nil, err
		}

		if fmt.Sprintf("%x", h.Sum(nil)) != value {
			flaws = append(flaws, fmt.Sprintf("hashvalue mismatch %s for %s", algorithm, archivePath))
		}
	}
	return flaws, nil
}

// Close saves and closes the database.
func (store *Store) Close() error {
	if store.fields.changed {
		_ = store.createViews()
	}

	return store.conn.Close()
}

func (store *Store) createViews() error {
	for typeName, fields := range store.fields.all() {
		err := store.exec(fmt.Sprintf("DROP VIEW IF EXISTS '%s'", typeName))
		if err != nil {
			return err
		}
		var columns []string
		for field := range fields {
			columns = append(columns, fmt.Sprintf("json_extract(json, '$.%s') as '%s'", field, field))
		}
		sort.Strings(columns)
		err = store.exec(
			fmt.Sprintf("CREATE VIEW '%s' AS SELECT %s FROM records WHERE json_extract(json, '$.%s') = '%s'",
				typeName, strings.Join(columns, ", "), discriminator, typeName),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

/* ################################
#   Intern
################################ */

func (store *Store) rowsToRecords(stmt *sqlite.Stmt) (elements []JSONRecord, err error) {
	elements = []JSONRecord{}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		elements = append(elements, JSONRecord(stmt.GetText("json")))
	}
	return elements, stmt.Finalize()
}

func (store *Store) setupFields() error {
	stmt, err := store.conn.Prepare("SELECT name FROM sqlite_master WHERE type = 'view'")
	if err != nil {
		return err
	}

	for {
		if hasRow, err := stmt.Step(); err != nil {
			return err
		} else if !hasRow {
			break
		}

		name := stmt.GetText("name")

		pragmaStmt, err := store.conn.Prepare(fmt.Sprintf("PRAGMA table_info (\"%s\")", name))
		if err != nil {
			return err
		}

		var columns []string
		for {
			if pragmaHasRow, err := pragmaStmt.Step(); err != nil {
				return err
			} else if !pragmaHasRow {
				break
			}

			columns = append(columns, pragmaStmt.GetText("name"))
		}
		err = pragmaStmt.Finalize()
		if err != nil {
			return err
		}

		store.fields.seed(name, columns)
	}

	return stmt.Finalize()
}

func (store *Store) exec(query string) error {
	stmt, err := store.conn.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Step()
	if err != nil {
		return err
	}

	return stmt.Finalize()
}
