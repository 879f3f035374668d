// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package arcgis

import (
	"fmt"
	"strings"
)

// InvalidSpecError is returned when a QuerySpec cannot be turned into a request
type InvalidSpecError struct {
	Field  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid query spec: %s %s", e.Field, e.Reason)
}

// RemoteServiceError is returned when the feature service reports an error object in its response
type RemoteServiceError struct {
	Dataset string
	Code    int
	Message string
	Details []string
}

func (e *RemoteServiceError) Error() string {
	msg := fmt.Sprintf("feature service error %d: %s", e.Code, e.Message)
	if e.Dataset != "" {
		msg = fmt.Sprintf("dataset %q: %s", e.Dataset, msg)
	}
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// MalformedResponseError describes a response that did not carry the expected features array
type MalformedResponseError struct {
	Dataset string
	Offset  int
	Reason  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response for dataset %q at offset %d: %s", e.Dataset, e.Offset, e.Reason)
}
