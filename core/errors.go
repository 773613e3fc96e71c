// Copyright 2025 Poiesic Systems
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


package core

import (
	"context"
	"errors"
	"net"
)

// Domain errors
var (
	// ErrRateLimited indicates the mail provider throttled or temporarily
	// rejected a request. Transient.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrBadCredentials indicates the provider rejected the credential.
	// Permanent.
	ErrBadCredentials = errors.New("bad provider credentials")

	// ErrMalformedPayload indicates input that cannot be parsed. Permanent.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidEpisode indicates an Episode failed validation.
	ErrInvalidEpisode = errors.New("invalid episode")

	// ErrInvalidJob indicates a SyncJob failed validation.
	ErrInvalidJob = errors.New("invalid sync job")

	// ErrEmptyTenant indicates a missing tenant identifier.
	ErrEmptyTenant = errors.New("tenant id cannot be empty")

	// ErrEmptyBody indicates an episode with no body text.
	ErrEmptyBody = errors.New("episode body cannot be empty")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)

// IsTransient reports whether err is worth retrying: provider rate limits,
// network failures and timeouts. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsPermanent reports whether err is a known non-retryable failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrBadCredentials) || errors.Is(err, ErrMalformedPayload)
}
