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

package detectionhistory

import (
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config carries the settings of one processing run. Flag values, an
// optional yaml file and the defaults merge in that order: set flags win,
// the file fills what the flags left empty, defaults fill the rest.
type Config struct {
	Output    string `yaml:"output"`
	Workers   int    `yaml:"workers"`
	Recursive bool   `yaml:"recursive"`
	Greedy    bool   `yaml:"greedy"`
	Silent    bool   `yaml:"silent"`
}

// DefaultConfig returns the built in defaults.
func DefaultConfig() Config {
	return Config{Output: ".", Workers: defaultWorkers}
}

// LoadConfig reads a yaml config file from fs.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	var cfg Config
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrapf(err, "could not read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config %s", path)
	}
	return cfg, nil
}

// Merge fills fields that are still zero in c with the values from other.
func (c *Config) Merge(other Config) error {
	return mergo.Merge(c, other)
}
