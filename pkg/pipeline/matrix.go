// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

// Job is one expanded cell of the build matrix.
type Job struct {
	// Number is the job's 1-based ordinal within the build.  Expansion
	// order is fixed (interpreter versions outer, env rows inner), so a
	// given pipeline file always yields the same numbering; deploy gates
	// rely on that.
	Number int
	// Python is the interpreter version of this cell, "" when the
	// pipeline doesn't vary interpreters.
	Python string
	// Env is the cell's merged environment: global variables first, then
	// the cell's env row, the row winning on conflicts.
	Env []Var
}

// Jobs expands the matrix.  The result has
// max(1,len(python)) * max(1,len(env rows)) cells and no I/O happened to
// compute it.
func (p *Pipeline) Jobs() ([]Job, error) {
	global, err := parseRows(p.Env.Global)
	if err != nil {
		return nil, err
	}

	pythons := []string(p.Python)
	if len(pythons) == 0 {
		pythons = []string{""}
	}
	rows := p.Env.Matrix
	if len(rows) == 0 {
		rows = []string{""}
	}

	jobs := make([]Job, 0, len(pythons)*len(rows))
	for _, py := range pythons {
		for _, row := range rows {
			rowVars, err := ParseVars(row)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, Job{
				Number: len(jobs) + 1,
				Python: py,
				Env:    MergeVars(global, rowVars),
			})
		}
	}
	return jobs, nil
}

// parseRows flattens several env rows into one variable list.
func parseRows(rows []string) ([]Var, error) {
	var vars []Var
	for _, row := range rows {
		rowVars, err := ParseVars(row)
		if err != nil {
			return nil, err
		}
		vars = append(vars, rowVars...)
	}
	return vars, nil
}
