package sqlitefs

import (
	"compress/flate"
	"errors"
	"io"
	"os"
	"path"

	"github.com/forensicanalysis/detectionhistory/sqlitefs/spooled"
)

var ErrNotImplemented = errors.New("not implemented")

// spoolLimit caps the in memory write buffer per file, larger payloads
// spill to a temporary file.
const spoolLimit = 16 << 20

// file is a handle into the sqlar table. A handle either reads an
// existing row or writes a new one, never both.
type file struct {
	fs   *FS
	name string

	// read side
	info     os.FileInfo
	blob     io.ReadCloser
	zr       io.ReadCloser
	children []os.FileInfo

	// write side
	rowid   int64
	spool   *spooled.TemporaryFile
	discard func() error
	zw      *flate.Writer
	size    int64
}

func newReadFile(fs *FS, rowid int64, name string, info os.FileInfo, children []os.FileInfo) (*file, error) {
	f := &file{fs: fs, name: name, info: info, children: children}

	if !info.IsDir() {
		blob, err := fs.conn.OpenBlob("", "sqlar", "data", rowid, false)
		if err != nil {
			return nil, err
		}
		f.blob = blob
		f.zr = flate.NewReader(blob)
	}

	return f, nil
}

func newWriteFile(fs *FS, rowid int64, name string) (*file, error) {
	f := &file{fs: fs, name: name, rowid: rowid}
	f.spool, f.discard = spooled.New(spoolLimit)

	var err error
	f.zw, err = flate.NewWriter(f.spool, flate.DefaultCompression)
	return f, err
}

func (f *file) Name() string {
	return path.Base(f.name)
}

func (f *file) Read(p []byte) (n int, err error) {
	if f.zr == nil {
		return 0, ErrNotImplemented
	}
	return f.zr.Read(p)
}

func (f *file) ReadAt(p []byte, off int64) (n int, err error) {
	return 0, ErrNotImplemented
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotImplemented
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	if count > 0 && count < len(f.children) {
		return f.children[:count], nil
	}
	return f.children, nil
}

func (f *file) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func (f *file) Stat() (os.FileInfo, error) {
	return f.info, nil
}

func (f *file) Write(p []byte) (n int, err error) {
	if f.zw == nil {
		return 0, ErrNotImplemented
	}
	f.size += int64(len(p))
	return f.zw.Write(p)
}

func (f *file) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, ErrNotImplemented
}

func (f *file) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}

func (f *file) Truncate(size int64) error {
	return ErrNotImplemented
}

func (f *file) Sync() error {
	if f.zw != nil {
		return f.zw.Flush()
	}
	return nil
}

func (f *file) Close() error {
	if f.zr != nil {
		if err := f.zr.Close(); err != nil {
			f.blob.Close() // nolint:errcheck
			return err
		}
		return f.blob.Close()
	}
	if f.zw != nil {
		defer f.discard() // nolint:errcheck
		return f.finish()
	}
	return nil
}

// finish flushes the compressed payload and moves it into the sqlar
// row together with the uncompressed size.
func (f *file) finish() error {
	if err := f.zw.Close(); err != nil {
		return err
	}
	compressed, err := f.spool.Size()
	if err != nil {
		return err
	}

	stmt := f.fs.conn.Prep("UPDATE sqlar SET sz = $sz, data = $data WHERE rowid = $rowid")
	stmt.SetInt64("$rowid", f.rowid)
	stmt.SetInt64("$sz", f.size)
	stmt.SetZeroBlob("$data", compressed)
	if err := exec(stmt); err != nil {
		return err
	}

	blob, err := f.fs.conn.OpenBlob("", "sqlar", "data", f.rowid, true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(blob, f.spool); err != nil {
		blob.Close() // nolint:errcheck
		return err
	}
	return blob.Close()
}
