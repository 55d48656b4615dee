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

package emitter

import (
	"errors"
	"fmt"
)

// DestinationError indicates the artifact could not be written: the
// destination is unreachable, unwritable, or malformed. It is surfaced to
// the caller and never retried internally; retry policy, if any, belongs
// to the caller.
type DestinationError struct {
	Destination string
	Err         error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s: %v", e.Destination, e.Err)
}
func (e *DestinationError) Unwrap() error { return e.Err }

// IsDestination reports whether err (or any error in its chain) is a
// DestinationError.
func IsDestination(err error) bool {
	var de *DestinationError
	return errors.As(err, &de)
}

func destinationErr(destination string, err error) error {
	return &DestinationError{Destination: destination, Err: err}
}

func destinationErrf(destination, format string, a ...any) error {
	return destinationErr(destination, fmt.Errorf(format, a...))
}
