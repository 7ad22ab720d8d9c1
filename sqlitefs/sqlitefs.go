// Package sqlitefs provides a file system inside a sqlite database.
// Files are stored flate compressed in an sqlar table, so every
// database written by this package is also a sqlite archive. The
// detection store uses it to preserve original DetectionHistory files
// next to the decoded records.
package sqlitefs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/spf13/afero"
)

const createTable = `CREATE TABLE IF NOT EXISTS sqlar (
  name TEXT PRIMARY KEY,
  mode INT,
  mtime INT,
  sz INT,
  data BLOB
);`

// FS implements afero.Fs on the sqlar table of a sqlite database.
type FS struct {
	conn     *sqlite.Conn
	ownsConn bool
}

// New opens the sqlite database at url as a file system. A missing
// database is created.
func New(url string) (*FS, error) {
	conn, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}

	fs, err := NewConn(conn)
	if err != nil {
		conn.Close() // nolint:errcheck
		return nil, err
	}
	fs.ownsConn = true
	return fs, nil
}

// NewConn creates a file system on an open sqlite connection. The
// connection stays owned by the caller, Close does not close it.
func NewConn(conn *sqlite.Conn) (*FS, error) {
	fs := &FS{conn: conn}
	return fs, exec(conn.Prep(createTable))
}

func (fs *FS) Name() string {
	return "sqlitefs"
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	stmt := fs.conn.Prep("UPDATE sqlar SET mode = $mode WHERE name = $name")
	stmt.SetText("$name", normalizePath(name))
	stmt.SetInt64("$mode", int64(mode))
	return exec(stmt)
}

func (fs *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	stmt := fs.conn.Prep("UPDATE sqlar SET mtime = $mtime WHERE name = $name")
	stmt.SetText("$name", normalizePath(name))
	stmt.SetInt64("$mtime", mtime.Unix())
	return exec(stmt)
}

func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	stmt := fs.conn.Prep("INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, NULL)")
	stmt.SetText("$name", normalizePath(name))
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())
	return exec(stmt)
}

func (fs *FS) MkdirAll(p string, perm os.FileMode) error {
	p = normalizePath(p)
	_ = fs.Mkdir("/", perm) // nolint:errcheck
	dir := ""
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		dir = dir + "/" + part
		_ = fs.Mkdir(dir, perm) // nolint:errcheck
	}
	return nil
}

func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizePath(name)
	if flag&os.O_CREATE != 0 {
		if flag&(os.O_RDWR|os.O_WRONLY) == 0 {
			return nil, ErrNotImplemented
		}
		return fs.openWrite(name, perm)
	}
	return fs.openRead(name)
}

// openWrite replaces any existing row, Create truncates.
func (fs *FS) openWrite(name string, perm os.FileMode) (afero.File, error) {
	stmt := fs.conn.Prep("INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, NULL)")
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(perm))
	stmt.SetInt64("$mtime", time.Now().Unix())
	if err := exec(stmt); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", name, err)
	}
	return newWriteFile(fs, fs.conn.LastInsertRowID(), name)
}

func (fs *FS) openRead(name string) (afero.File, error) {
	stmt := fs.conn.Prep("SELECT rowid, mode, mtime, sz, data IS NULL AS nodata FROM sqlar WHERE name = $name")
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, err
	}
	if !hasRow {
		if err := stmt.Reset(); err != nil {
			return nil, err
		}
		if name != "/" {
			return nil, os.ErrNotExist
		}
		// the root exists even in an empty archive
		children, err := fs.readDir(name)
		if err != nil {
			return nil, err
		}
		return newReadFile(fs, 0, name, rootInfo(), children)
	}

	rowid := stmt.GetInt64("rowid")
	size := stmt.GetInt64("sz")
	info := &fileInfo{
		name:  path.Base(name),
		size:  size,
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   size == 0 && stmt.GetInt64("nodata") == 1,
	}
	if err := stmt.Reset(); err != nil {
		return nil, err
	}

	var children []os.FileInfo
	if info.dir {
		children, err = fs.readDir(name)
		if err != nil {
			return nil, err
		}
	}
	return newReadFile(fs, rowid, name, info, children)
}

func (fs *FS) readDir(name string) ([]os.FileInfo, error) {
	prefix := name + "/%"
	if name == "/" {
		prefix = "/%"
	}

	stmt := fs.conn.Prep("SELECT name, mode, mtime, sz, data IS NULL AS nodata FROM sqlar WHERE name LIKE $prefix")
	stmt.SetText("$prefix", prefix)

	var children []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}

		child := stmt.GetText("name")
		if child == name || strings.Contains(strings.Trim(child[len(name):], "/"), "/") {
			continue // not a direct child
		}

		size := stmt.GetInt64("sz")
		children = append(children, &fileInfo{
			name:  path.Base(child),
			size:  size,
			mode:  os.FileMode(stmt.GetInt64("mode")),
			mtime: time.Unix(stmt.GetInt64("mtime"), 0),
			dir:   size == 0 && stmt.GetInt64("nodata") == 1,
		})
	}
	return children, stmt.Finalize()
}

func (fs *FS) Remove(name string) error {
	stmt := fs.conn.Prep("DELETE FROM sqlar WHERE name = $name")
	stmt.SetText("$name", normalizePath(name))
	return exec(stmt)
}

func (fs *FS) RemoveAll(p string) error {
	p = normalizePath(p)
	prefix := p + "/%"
	if p == "/" {
		prefix = "/%"
	}
	stmt := fs.conn.Prep("DELETE FROM sqlar WHERE name = $name OR name LIKE $prefix")
	stmt.SetText("$name", p)
	stmt.SetText("$prefix", prefix)
	return exec(stmt)
}

func (fs *FS) Rename(oldname, newname string) error {
	stmt := fs.conn.Prep("UPDATE sqlar SET name = $newname WHERE name = $oldname")
	stmt.SetText("$oldname", normalizePath(oldname))
	stmt.SetText("$newname", normalizePath(newname))
	return exec(stmt)
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	name = normalizePath(name)

	stmt := fs.conn.Prep("SELECT mode, mtime, sz, data IS NULL AS nodata FROM sqlar WHERE name = $name")
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, err
	}
	if !hasRow {
		if err := stmt.Finalize(); err != nil {
			return nil, err
		}
		if name == "/" {
			return rootInfo(), nil
		}
		return nil, os.ErrNotExist
	}

	size := stmt.GetInt64("sz")
	info := &fileInfo{
		name:  path.Base(name),
		size:  size,
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   size == 0 && stmt.GetInt64("nodata") == 1,
	}
	return info, stmt.Finalize()
}

// Close releases the connection if the file system opened it itself.
func (fs *FS) Close() error {
	if !fs.ownsConn {
		return nil
	}
	return fs.conn.Close()
}

type fileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
	dir   bool
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return i.size }
func (i *fileInfo) Mode() os.FileMode  { return i.mode }
func (i *fileInfo) ModTime() time.Time { return i.mtime }
func (i *fileInfo) IsDir() bool        { return i.dir }
func (i *fileInfo) Sys() interface{}   { return nil }

func rootInfo() *fileInfo {
	return &fileInfo{name: "/", mode: 0755, dir: true}
}

func exec(stmt *sqlite.Stmt) error {
	_, err := stmt.Step()
	if ferr := stmt.Finalize(); err == nil {
		err = ferr
	}
	return err
}

func normalizePath(name string) string {
	name = filepath.ToSlash(name)
	if name == "" || name == "." || name == "/" {
		return "/"
	}
	return "/" + strings.Trim(name, "/")
}
