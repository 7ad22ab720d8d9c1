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

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/detectionhistory"
)

// Parse is the detectionhistory parse commandline subcommand. It decodes
// DetectionHistory files into JSON files in the output directory.
func Parse() *cobra.Command {
	cfg := &detectionhistory.Config{}
	var configPath string
	parseCommand := &cobra.Command{
		Use:   "parse <file-or-directory>",
		Short: "Parse DetectionHistory files into JSON files",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			input := cmd.Flags().Args()[0]
			if err := loadConfig(cfg, configPath); err != nil {
				return err
			}
			if cfg.Silent {
				detectionhistory.Silence()
			}

			fs := afero.NewOsFs()
			artifacts, err := detectionhistory.Discover(fs, input, cfg.Recursive, cfg.Greedy)
			if err != nil {
				return err
			}

			writer, err := detectionhistory.NewWriter(fs, cfg.Output)
			if err != nil {
				return err
			}

			processor := detectionhistory.Processor{FS: fs, Workers: cfg.Workers}
			summary := processor.Process(artifacts, writer)
			summary.Report(cfg.Output)
			return nil
		},
	}
	parseCommand.Flags().StringVarP(&cfg.Output, "output", "o", "", "output directory for the decoded records")
	addProcessFlags(parseCommand, cfg, &configPath)
	return parseCommand
}

// Import is the detectionhistory import commandline subcommand. It decodes
// DetectionHistory files into a detection store and records the run.
func Import() *cobra.Command {
	cfg := &detectionhistory.Config{}
	var configPath string
	var archive bool
	importCommand := &cobra.Command{
		Use:   "import <file-or-directory> <store>",
		Short: "Import DetectionHistory files into a detection store",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			input := cmd.Flags().Args()[0]
			storeName := cmd.Flags().Args()[1]
			if err := loadConfig(cfg, configPath); err != nil {
				return err
			}
			if cfg.Silent {
				detectionhistory.Silence()
			}

			fs := afero.NewOsFs()
			artifacts, err := detectionhistory.Discover(fs, input, cfg.Recursive, cfg.Greedy)
			if err != nil {
				return err
			}

			store, err := detectionhistory.Open(storeName)
			if err == detectionhistory.ErrStoreNotExists {
				store, err = detectionhistory.New(storeName)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			processor := detectionhistory.Processor{FS: fs, Workers: cfg.Workers}
			sink := detectionhistory.StoreSink{Store: store, FS: fs, Archive: archive}
			summary := processor.Process(artifacts, sink)

			run := detectionhistory.NewRun("detectionhistory")
			run.Version = cmd.Root().Version
			run.Input = input
			run.Output = storeName
			run.Parsed = summary.Parsed
			run.Failed = summary.Failed
			run.Total = summary.Total
			run.Elapsed = summary.Elapsed.Round(time.Millisecond).String()
			for _, e := range summary.Errors {
				run.AddError(e)
			}
			if _, err := store.InsertStruct(run); err != nil {
				return err
			}

			summary.Report(storeName)
			return nil
		},
	}
	importCommand.Flags().BoolVarP(&archive, "archive", "a", false, "preserve the original files in the store archive")
	addProcessFlags(importCommand, cfg, &configPath)
	return importCommand
}

// Create is the detectionhistory create commandline subcommand
func Create() *cobra.Command {
	return &cobra.Command{
		Use:   "create <store>",
		Short: "Create a detection store",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			storeName := cmd.Flags().Args()[0]
			store, err := detectionhistory.New(storeName)
			if err != nil {
				return err
			}
			return store.Close()
		},
	}
}

// Record is the detectionhistory record commandline subcommand
func Record() *cobra.Command {
	recordCommand := &cobra.Command{
		Use:   "record",
		Short: "Manipulate the detection store via the commandline",
	}
	recordCommand.AddCommand(getCommand(), selectCommand(), allCommand(),
		insertCommand(), searchCommand())
	return recordCommand
}

// Validate is the detectionhistory validate commandline subcommand
func Validate() *cobra.Command {
	var noFail bool
	validateCommand := &cobra.Command{
		Use:   "validate <store>",
		Short: "Validate all records",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeName := cmd.Flags().Args()[0]

			store, err := detectionhistory.Open(storeName)
			if err != nil {
				fmt.Println(err)
				return err
			}
			defer store.Close()
			valErr, err := store.Validate()
			if err != nil {
				fmt.Println(err)
				return err
			}
			if len(valErr) > 0 {
				for i, v := range valErr {
					valErr[i] = strings.Replace(v, "\"", "\\\"", -1)
				}
				fmt.Printf("[\"%s\"]\n", strings.Join(valErr, "\", \""))
				if noFail {
					return nil
				}
				return fmt.Errorf("store contains %d invalid records", len(valErr))
			}
			return nil
		},
	}
	validateCommand.Flags().BoolVar(&noFail, "no-fail", false, "return exit code 0")
	return validateCommand
}

func addProcessFlags(cmd *cobra.Command, cfg *detectionhistory.Config, configPath *string) {
	cmd.Flags().BoolVarP(&cfg.Recursive, "recursive", "r", false, "descend into directories")
	cmd.Flags().BoolVarP(&cfg.Greedy, "greedy", "g", false, "try every file, not only files with GUID names")
	cmd.Flags().BoolVarP(&cfg.Silent, "silent", "s", false, "suppress progress output")
	cmd.Flags().IntVar(&cfg.Workers, "workers", 0, "number of parallel workers")
	cmd.Flags().StringVar(configPath, "config", "", "read settings from a yaml file")
}

func loadConfig(cfg *detectionhistory.Config, configPath string) error {
	if configPath != "" {
		fileConfig, err := detectionhistory.LoadConfig(afero.NewOsFs(), configPath)
		if err != nil {
			return err
		}
		if err := cfg.Merge(fileConfig); err != nil {
			return err
		}
	}
	return cfg.Merge(detectionhistory.DefaultConfig())
}

func requireOneStore(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("requires exactly one store")
	}
	for _, arg := range args {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, arg)
		}
	}
	return nil
}
