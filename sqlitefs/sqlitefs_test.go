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

package sqlitefs

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"github.com/spf13/afero"
)

func setup(t *testing.T) string {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dir, err := ioutil.TempDir("", name)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func cleanup(t *testing.T, directories ...string) {
	for _, directory := range directories {
		err := os.RemoveAll(directory)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func testFS(t *testing.T, dir string) *FS {
	fs, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}

	err = afero.WriteFile(fs, "/file1.bin", bytes.Repeat([]byte("test"), 1000), 0666)
	if err != nil {
		t.Fatal(err)
	}

	err = fs.MkdirAll("/dir/subdir", 0755)
	if err != nil {
		t.Fatal(err)
	}

	err = afero.WriteFile(fs, "/dir/subdir/file2.bin", []byte("test2"), 0666)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestFS_WriteRead(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []byte
	}{
		{"root file", "/file1.bin", bytes.Repeat([]byte("test"), 1000)},
		{"nested file", "/dir/subdir/file2.bin", []byte("test2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := setup(t)
			defer cleanup(t, tempDir)
			fs := testFS(t, tempDir)
			defer fs.Close()

			got, err := afero.ReadFile(fs, tt.path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadFile() = %d bytes, want %d bytes", len(got), len(tt.want))
			}
		})
	}
}

func TestFS_Create(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	// Create on an existing path truncates
	err := afero.WriteFile(fs, "/file1.bin", []byte("overwritten"), 0666)
	if err != nil {
		t.Fatal(err)
	}

	got, err := afero.ReadFile(fs, "/file1.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "overwritten" {
		t.Errorf("ReadFile() = %q, want %q", got, "overwritten")
	}
}

func TestFS_OpenFile(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	if _, err := fs.OpenFile("/f3.bin", os.O_CREATE, 0666); err != ErrNotImplemented {
		t.Errorf("OpenFile() error = %v, want ErrNotImplemented", err)
	}
	if _, err := fs.Open("/missing.bin"); !os.IsNotExist(err) {
		t.Errorf("Open() error = %v, want not exist", err)
	}
}

func TestFS_Stat(t *testing.T) {
	type want struct {
		name string
		size int64
		dir  bool
	}
	tests := []struct {
		name    string
		path    string
		want    want
		wantErr bool
	}{
		{"file", "/file1.bin", want{"file1.bin", 4000, false}, false},
		{"directory", "/dir/subdir", want{"subdir", 0, true}, false},
		{"root", "/", want{"/", 0, true}, false},
		{"missing", "/nosuchfile", want{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := setup(t)
			defer cleanup(t, tempDir)
			fs := testFS(t, tempDir)
			defer fs.Close()

			info, err := fs.Stat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Stat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if info.Name() != tt.want.name {
				t.Errorf("Stat() name = %v, want %v", info.Name(), tt.want.name)
			}
			if info.Size() != tt.want.size {
				t.Errorf("Stat() size = %v, want %v", info.Size(), tt.want.size)
			}
			if info.IsDir() != tt.want.dir {
				t.Errorf("Stat() dir = %v, want %v", info.IsDir(), tt.want.dir)
			}
		})
	}
}

func TestFS_Chmod(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	if err := fs.Chmod("/file1.bin", 0400); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	info, err := fs.Stat("/file1.bin")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode() != 0400 {
		t.Errorf("Chmod() mode = %v, want %v", info.Mode(), os.FileMode(0400))
	}
}

func TestFS_Chtimes(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	myTime := time.Now().Add(-time.Hour)
	if err := fs.Chtimes("/file1.bin", myTime, myTime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	info, err := fs.Stat("/file1.bin")
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime().Unix() != myTime.Unix() {
		t.Errorf("Chtimes() mtime = %v, want %v", info.ModTime(), myTime)
	}
}

func TestFS_Rename(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	if err := fs.Rename("/file1.bin", "/renamed.bin"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if exists, _ := afero.Exists(fs, "/file1.bin"); exists {
		t.Error("Rename() old name still exists")
	}
	got, err := afero.ReadFile(fs, "/renamed.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte("test"), 1000)) {
		t.Error("Rename() did not keep the content")
	}
}

func TestFS_Remove(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	if err := fs.Remove("/file1.bin"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if exists, _ := afero.Exists(fs, "/file1.bin"); exists {
		t.Error("Remove() file still exists")
	}
}

func TestFS_RemoveAll(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	// a sibling that shares the removed prefix must survive
	err := afero.WriteFile(fs, "/dirother.bin", []byte("keep"), 0666)
	if err != nil {
		t.Fatal(err)
	}

	if err := fs.RemoveAll("/dir"); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	for _, gone := range []string{"/dir", "/dir/subdir", "/dir/subdir/file2.bin"} {
		if exists, _ := afero.Exists(fs, gone); exists {
			t.Errorf("RemoveAll() %s still exists", gone)
		}
	}
	if exists, _ := afero.Exists(fs, "/dirother.bin"); !exists {
		t.Error("RemoveAll() removed an unrelated sibling")
	}
}

func TestFS_ReadDir(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	infos, err := afero.ReadDir(fs, "/")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"dir", "file1.bin"}) {
		t.Errorf("ReadDir() = %v, want [dir file1.bin]", names)
	}
}

func TestFS_Walk(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)
	fs := testFS(t, tempDir)
	defer fs.Close()

	var files []string
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		files = append(files, filepath.ToSlash(path))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	sort.Strings(files)
	want := []string{"/dir/subdir/file2.bin", "/file1.bin"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Walk() = %v, want %v", files, want)
	}
}

func TestFS_Walk_Empty(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)

	fs, err := New(filepath.Join(tempDir, "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	count := 0
	err = afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Walk() found %d files in an empty archive", count)
	}
}

func TestNewConn(t *testing.T) {
	tempDir := setup(t)
	defer cleanup(t, tempDir)

	conn, err := sqlite.OpenConn(filepath.Join(tempDir, "shared.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	fs, err := NewConn(conn)
	if err != nil {
		t.Fatal(err)
	}

	err = afero.WriteFile(fs, "/shared.bin", []byte("shared"), 0666)
	if err != nil {
		t.Fatal(err)
	}

	// Close must leave the shared connection open
	if err := fs.Close(); err != nil {
		t.Fatal(err)
	}

	stmt := conn.Prep("SELECT COUNT(*) AS count FROM sqlar")
	hasRow, err := stmt.Step()
	if err != nil {
		t.Fatal(err)
	}
	if !hasRow || stmt.GetInt64("count") == 0 {
		t.Error("NewConn() wrote nothing to the shared connection")
	}
	if err := stmt.Finalize(); err != nil {
		t.Fatal(err)
	}
}
