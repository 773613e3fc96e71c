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
	"fmt"
	"time"
)

// ValidateMessage validates a provider Message according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - InternalDate must be positive
//
// NOT validated:
//   - Headers and Parts (providers legitimately deliver messages with
//     neither, e.g. deleted drafts)
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}

	if msg.Id == "" {
		return fmt.Errorf("%w: empty message id", ErrInvalidMessage)
	}

	if msg.InternalDate <= 0 {
		return fmt.Errorf("%w: non-positive internal date %d", ErrInvalidMessage, msg.InternalDate)
	}

	return nil
}

// ValidateEpisode validates an Episode before submission to the
// extraction engine.
//
// Validation rules:
//   - Body must not be empty
//   - TenantId must not be empty
//   - ReferenceTime must not be in the future
func ValidateEpisode(ep *Episode) error {
	if ep == nil {
		return fmt.Errorf("%w: episode is nil", ErrInvalidEpisode)
	}

	if ep.Body == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEpisode, ErrEmptyBody)
	}

	if ep.TenantId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEpisode, ErrEmptyTenant)
	}

	if !IsValidTimestamp(ep.ReferenceTime) {
		return fmt.Errorf("%w: %w", ErrInvalidEpisode, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateJobRequest validates the user-supplied fields of a sync job.
//
// Validation rules:
//   - TenantId must not be empty
//   - Days must be between 1 and 365
func ValidateJobRequest(job *SyncJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if job.TenantId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyTenant)
	}

	if job.Days < 1 || job.Days > 365 {
		return fmt.Errorf("%w: days must be in [1,365], got %d", ErrInvalidJob, job.Days)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
