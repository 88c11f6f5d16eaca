// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Var is one environment variable.
type Var struct {
	Name  string
	Value string
}

// String renders the variable the way os/exec wants it.
func (v Var) String() string {
	return v.Name + "=" + v.Value
}

// EnvConfig is the `env` key of a pipeline file.  YAML gives it one of two
// shapes: a plain list of rows, where each row declares the variables of one
// matrix job,
//
//	env:
//	  - NUMPY_VERSION=1.15 OMP_NUM_THREADS=1
//	  - NUMPY_VERSION=1.16 OMP_NUM_THREADS=1
//
// or a mapping separating variables shared by every job from the ones that
// vary:
//
//	env:
//	  global:
//	    - OMP_NUM_THREADS=1
//	  matrix:
//	    - NUMPY_VERSION=1.15
//	    - NUMPY_VERSION=1.16
type EnvConfig struct {
	Global []string `json:"global,omitempty"`
	Matrix []string `json:"matrix,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler, accepting both shapes plus the
// degenerate single-row scalar.
func (e *EnvConfig) UnmarshalJSON(data []byte) error {
	var rows []string
	if err := json.Unmarshal(data, &rows); err == nil {
		*e = EnvConfig{Matrix: rows}
		return nil
	}
	var row string
	if err := json.Unmarshal(data, &row); err == nil {
		*e = EnvConfig{Matrix: []string{row}}
		return nil
	}
	type envConfig EnvConfig // avoid recursing into this method
	var full envConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&full); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	*e = EnvConfig(full)
	return nil
}

// ParseVars splits an env row ("NUMPY_VERSION=1.15 OMP_NUM_THREADS=1") into
// its variables.  Values may be quoted shell-style, so spaces inside a value
// are fine.  An empty row is an empty list.
func ParseVars(row string) ([]Var, error) {
	words, err := shellquote.Split(row)
	if err != nil {
		return nil, fmt.Errorf("env row %q: %w", row, err)
	}
	vars := make([]Var, 0, len(words))
	for _, word := range words {
		name, value, ok := strings.Cut(word, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("env row %q: %q is not NAME=VALUE", row, word)
		}
		vars = append(vars, Var{Name: name, Value: value})
	}
	return vars, nil
}

// MergeVars merges layers of variables; a later layer wins over an earlier
// one for the same name.  Order of first appearance is kept so that rendered
// environments stay stable.
func MergeVars(layers ...[]Var) []Var {
	var order []string
	byName := make(map[string]string)
	for _, layer := range layers {
		for _, v := range layer {
			if _, seen := byName[v.Name]; !seen {
				order = append(order, v.Name)
			}
			byName[v.Name] = v.Value
		}
	}
	ret := make([]Var, 0, len(order))
	for _, name := range order {
		ret = append(ret, Var{Name: name, Value: byName[name]})
	}
	return ret
}
