// Copyright (c) 2019 Siemens AG
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

// Package main implements the detectionhistory command line tool with
// various subcommands to decode and handle Windows Defender
// DetectionHistory files.
//     parse     Parse DetectionHistory files into JSON files
//     import    Import DetectionHistory files into a detection store
//     create    Create a detection store
//     record    Edit the detection store (insert, get, select, all, search)
//     validate  Validate detection stores
//     pack      Add files to the store archive
//     unpack    Extract files from the store archive
//     ls        List files in the store archive
//
// Usage
//
// Decode a single file into the current directory
//     detectionhistory parse 8A6A29D8-BB84-42DD-B4AE-37A6F0C1D22F
// Decode a whole DetectionHistory tree
//     detectionhistory parse -r -o decoded "C:\ProgramData\Microsoft\Windows Defender\Scans\History\Service\DetectionHistory"
// Collect records in a detection store, preserving the originals
//     detectionhistory import -r -a DetectionHistory case14.dhstore
// Query the detection store
//     detectionhistory record get detection--16b02a2b-d1a1-4e79-aad6-2f2c1c286818 case14.dhstore
//     detectionhistory record search Trojan case14.dhstore
//     detectionhistory record all case14.dhstore > export.json
// Extract the preserved originals
//     detectionhistory unpack -o exported case14.dhstore
//
// Validate a detection store
//     detectionhistory validate case14.dhstore
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/detectionhistory/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "detectionhistory",
		Short:   "Decode Windows Defender DetectionHistory files",
		Version: "1.0.0",
	}
	rootCmd.AddCommand(cmd.Parse(), cmd.Import(), cmd.Create(), cmd.Record(), cmd.Validate(),
		cmd.Pack(), cmd.Unpack(), cmd.Ls())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
