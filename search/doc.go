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


// Package search provides hybrid retrieval over a tenant's mailbox.
//
// A query runs two legs against different stores: a fact search through
// the extraction engine's graph, and a cosine-similarity scan over the
// cached email documents. Document hits that verbatim contain every
// query word get a score boost. The two legs are independent; either
// may come back empty without failing the query.
package search
