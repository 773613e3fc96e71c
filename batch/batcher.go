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


package batch

import (
	"sort"
	"time"

	"github.com/poiesic/mailgraph/core"
)

// DefaultMaxPerBatch caps how many messages a single episode may carry.
const DefaultMaxPerBatch = 50

// Group sorts messages chronologically, buckets them by UTC calendar day
// and chunks each day into sub-batches of at most maxPerBatch messages.
//
// The sort happens before grouping so that ordering holds both within and
// across sub-batches: iterating the result in order visits every message in
// non-decreasing timestamp order. The sort is stable, so messages sharing a
// timestamp keep their input order. maxPerBatch values below 1 fall back to
// DefaultMaxPerBatch.
func Group(messages []*core.Message, maxPerBatch int) []core.SubBatch {
	if maxPerBatch < 1 {
		maxPerBatch = DefaultMaxPerBatch
	}
	if len(messages) == 0 {
		return nil
	}

	sorted := make([]*core.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InternalDate < sorted[j].InternalDate
	})

	var batches []core.SubBatch
	var day time.Time
	var current []*core.Message
	index := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		index++
		batches = append(batches, core.SubBatch{
			Date:     day,
			Index:    index,
			Messages: current,
		})
		current = nil
	}

	for _, msg := range sorted {
		msgDay := msg.Timestamp().Truncate(24 * time.Hour)
		if !msgDay.Equal(day) {
			flush()
			day = msgDay
			index = 0
		} else if len(current) >= maxPerBatch {
			flush()
		}
		current = append(current, msg)
	}
	flush()

	return batches
}
