// Copyright 2026 The Kraken Authors
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


package retry

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for retry purposes.
type Kind int

const (
	// KindUnknown covers errors with no explicit classification.
	// Unknown errors are classified heuristically by Classify.
	KindUnknown Kind = iota

	// KindTransient covers rate limits, timeouts, and 5xx-style failures.
	// Transient errors are retried with exponential backoff.
	KindTransient

	// KindPermanent covers authentication, malformed-request, and not-found
	// failures. Retrying cannot change the outcome, so they surface immediately.
	KindPermanent

	// KindData covers validation failures local to one item
	// (e.g. empty content, vector dimension mismatch). The offending item is
	// dropped and the rest of the batch proceeds.
	KindData
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Error tags an underlying error with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a transient failure of operation op.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a permanent failure of operation op.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// Data wraps err as an item-local validation failure of operation op.
func Data(op string, err error) *Error {
	return &Error{Kind: KindData, Op: op, Err: err}
}

// transientKeywords mark error text that indicates a retryable condition.
var transientKeywords = []string{
	"ratelimited",
	"rate_limit",
	"rate limit",
	"service_unavailable",
	"connection",
	"timeout",
	"temporary",
	"503",
	"502",
	"504",
	"reset by peer",
	"unexpected eof",
}

// Classify returns the Kind of err. Errors already tagged with a Kind keep it;
// untagged errors are classified by matching known transient keywords in the
// error text, defaulting to permanent so unknown failures are not retried blindly.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	text := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(text, keyword) {
			return KindTransient
		}
	}

	return KindPermanent
}

// KindFromStatus maps an HTTP status code to a Kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == 429:
		return KindTransient
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindPermanent
	default:
		return KindUnknown
	}
}
