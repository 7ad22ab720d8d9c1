// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/detectionhistory/sqlitefs"
)

// Pack is the detectionhistory pack commandline subcommand. It adds
// arbitrary case files to the store archive.
func Pack() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <store> <file>...",
		Short: "Add files to the store archive",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS := afero.NewOsFs()
			destFS, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer destFS.Close()

			for _, arg := range args[1:] {
				fmt.Println("pack", filepath.ToSlash(arg))
				if err := copyItem(srcFS, destFS, filepath.ToSlash(arg), filepath.ToSlash(arg)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Unpack is the detectionhistory unpack commandline subcommand. It
// extracts all archived files into the output directory.
func Unpack() *cobra.Command {
	var output string
	unpackCommand := &cobra.Command{
		Use:   "unpack <store>",
		Short: "Extract files from the store archive",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFS, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer srcFS.Close()

			destFS := afero.NewOsFs()

			return afero.Walk(srcFS, "/", func(srcPath string, info os.FileInfo, err error) error {
				if err != nil || info == nil || info.IsDir() {
					return nil
				}

				srcPath = filepath.ToSlash(srcPath)
				dest := filepath.Join(output, strings.TrimLeft(srcPath, "/"))
				fmt.Printf("unpack '%s' to '%s'\n", srcPath, dest)
				return copyItem(srcFS, destFS, srcPath, dest)
			})
		},
	}
	unpackCommand.Flags().StringVarP(&output, "output", "o", ".", "output directory for the extracted files")
	return unpackCommand
}

// Ls is the detectionhistory ls commandline subcommand
func Ls() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <store>",
		Short: "List files in the store archive",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			return afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
				if err != nil || info == nil || info.IsDir() {
					return nil
				}
				fmt.Println(filepath.ToSlash(path))
				return nil
			})
		},
	}
}

func copyItem(srcFS, destFS afero.Fs, src, dest string) error {
	info, err := srcFS.Stat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		if err := destFS.MkdirAll(dest, 0755); err != nil {
			return err
		}
		entries, err := afero.ReadDir(srcFS, src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			err := copyItem(srcFS, destFS, path.Join(src, entry.Name()), filepath.Join(dest, entry.Name()))
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := destFS.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	srcFile, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := destFS.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close() // nolint:errcheck
		return err
	}
	return destFile.Close()
}
