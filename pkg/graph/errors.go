// Copyright 2025 The Pipeflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a bad resource, secret, or duration value in
// the compiler input. It is always raised at compile time, before any graph
// synthesis, so misconfiguration surfaces before anything reaches the
// cluster.
type ConfigurationError struct {
	Stage string
	Err   error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// GraphError indicates a cyclic or dangling-reference input graph, or a
// synthesis invariant violation. It is fatal and never retried: the input
// pipeline (or the compiler itself) needs to change.
type GraphError struct {
	Stage string
	Err   error
}

func (e *GraphError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *GraphError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err (or any error in its chain) is a
// ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsGraph reports whether err (or any error in its chain) is a GraphError.
func IsGraph(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

func configuration(stage string, err error) error { return &ConfigurationError{Stage: stage, Err: err} }
func graphErr(stage string, err error) error      { return &GraphError{Stage: stage, Err: err} }

func configurationf(stage, format string, a ...any) error {
	return configuration(stage, fmt.Errorf(format, a...))
}

func graphErrf(stage, format string, a ...any) error {
	return graphErr(stage, fmt.Errorf(format, a...))
}
