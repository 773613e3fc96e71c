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


package syncjob

import "errors"

var (
	// ErrStoreRequired indicates that no store was provided.
	ErrStoreRequired = errors.New("store is required")

	// ErrProviderRequired indicates that no mail provider was provided.
	ErrProviderRequired = errors.New("mail provider is required")

	// ErrEngineRequired indicates that no extraction engine was provided.
	ErrEngineRequired = errors.New("extraction engine is required")

	// ErrNormalizerRequired indicates that no normalizer was provided.
	ErrNormalizerRequired = errors.New("normalizer is required")

	// ErrInvalidMaxAttempts indicates a retry policy with no attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")

	// ErrJobNotActive indicates a cancel request for a job that already
	// reached a terminal status.
	ErrJobNotActive = errors.New("job is not active")

	// ErrTimeLimitExceeded indicates the job ran past its time budget.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
)
