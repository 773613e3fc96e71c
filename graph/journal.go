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


package graph

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JournalEntry is one journaled driver call.
type JournalEntry struct {
	At     time.Time      `json:"at"`
	Kind   string         `json:"kind"` // "query" or "index"
	Query  string         `json:"query,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Label  string         `json:"label,omitempty"`
	Prop   string         `json:"property,omitempty"`
}

// JournalDriver writes every call as a JSON line instead of talking to a
// graph database. Queries return no rows, so fact search comes back
// empty. It lets the full pipeline run locally and leaves a replayable
// record of the writes a real driver would have applied.
type JournalDriver struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewJournalDriver journals to w. If w is also an io.Closer it is closed
// by Close.
func NewJournalDriver(w io.Writer) *JournalDriver {
	d := &JournalDriver{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		d.c = c
	}
	return d
}

// ExecuteQuery journals the query and returns no rows.
func (d *JournalDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.enc.Encode(JournalEntry{
		At:     time.Now().UTC(),
		Kind:   "query",
		Query:  query,
		Params: params,
	})
	return nil, err
}

// EnsureIndex journals the index request.
func (d *JournalDriver) EnsureIndex(ctx context.Context, label, property string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Encode(JournalEntry{
		At:    time.Now().UTC(),
		Kind:  "index",
		Label: label,
		Prop:  property,
	})
}

// Close closes the underlying writer when it is closable.
func (d *JournalDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return d.c.Close()
	}
	return nil
}
