// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import "fmt"

// StatusError is returned when the remote server answers with a non-2xx status code
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected HTTP status code: %d", e.Code)
}

// TransportError is returned once all retries of a transient failure are exhausted
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("HTTP request failed after %d attempt(s): %s", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
