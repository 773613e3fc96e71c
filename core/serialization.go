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
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for every type the storage layer persists. Field order is
// the wire format; append new fields at the end only.

// IDMUS serializes IDs.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS serializes times as unix microseconds. The zero time maps to the
// sentinel 0 so optional timestamps (StartedAt, CompletedAt) survive a
// round trip as zero.
type timeMUS struct{}

var timeSer = timeMUS{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Marshal(micros, bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micros == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func (timeMUS) Size(t time.Time) int {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Size(micros)
}

// vectorMUS serializes embedding vectors as a length prefix followed by
// raw float bits.
type vectorMUS struct{}

var vectorSer = vectorMUS{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func (vectorMUS) Size(v []float32) (n int) {
	n = varint.Int.Size(len(v))
	for _, f := range v {
		n += varint.Uint32.Size(math.Float32bits(f))
	}
	return n
}

// SyncJobMUS serializes SyncJobs.
var SyncJobMUS = syncJobMUS{}

type syncJobMUS struct{}

func (syncJobMUS) Marshal(j SyncJob, bs []byte) (n int) {
	n = ord.String.Marshal(j.Id, bs)
	n += ord.String.Marshal(j.TenantId, bs[n:])
	n += ord.String.Marshal(j.AccountId, bs[n:])
	n += varint.Int.Marshal(j.Days, bs[n:])
	n += ord.String.Marshal(string(j.Status), bs[n:])
	n += ord.String.Marshal(string(j.Progress.Phase), bs[n:])
	n += varint.Int.Marshal(j.Progress.Percent, bs[n:])
	n += varint.Int.Marshal(j.EmailsProcessed, bs[n:])
	n += ord.String.Marshal(j.TaskHandle, bs[n:])
	n += ord.String.Marshal(j.ErrorMessage, bs[n:])
	n += timeSer.Marshal(j.CreatedAt, bs[n:])
	n += timeSer.Marshal(j.StartedAt, bs[n:])
	n += timeSer.Marshal(j.CompletedAt, bs[n:])
	return n
}

func (syncJobMUS) Unmarshal(bs []byte) (j SyncJob, n int, err error) {
	var n1 int
	if j.Id, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if j.TenantId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.AccountId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.Days, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	var status, phase string
	if status, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	j.Status = JobStatus(status)
	if phase, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	j.Progress.Phase = Phase(phase)
	if j.Progress.Percent, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.EmailsProcessed, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.TaskHandle, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.StartedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.CompletedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	return j, n, nil
}

func (s syncJobMUS) Size(j SyncJob) (n int) {
	n = ord.String.Size(j.Id)
	n += ord.String.Size(j.TenantId)
	n += ord.String.Size(j.AccountId)
	n += varint.Int.Size(j.Days)
	n += ord.String.Size(string(j.Status))
	n += ord.String.Size(string(j.Progress.Phase))
	n += varint.Int.Size(j.Progress.Percent)
	n += varint.Int.Size(j.EmailsProcessed)
	n += ord.String.Size(j.TaskHandle)
	n += ord.String.Size(j.ErrorMessage)
	n += timeSer.Size(j.CreatedAt)
	n += timeSer.Size(j.StartedAt)
	n += timeSer.Size(j.CompletedAt)
	return n
}

// ProcessedEpisodeRecordMUS serializes episode ledger rows.
var ProcessedEpisodeRecordMUS = processedEpisodeRecordMUS{}

type processedEpisodeRecordMUS struct{}

func (processedEpisodeRecordMUS) Marshal(r ProcessedEpisodeRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.Source, bs)
	n += ord.String.Marshal(r.SourceId, bs[n:])
	n += ord.String.Marshal(r.TenantId, bs[n:])
	n += ord.String.Marshal(r.EpisodeId, bs[n:])
	n += timeSer.Marshal(r.CreatedAt, bs[n:])
	return n
}

func (processedEpisodeRecordMUS) Unmarshal(bs []byte) (r ProcessedEpisodeRecord, n int, err error) {
	var n1 int
	if r.Source, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if r.SourceId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.TenantId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.EpisodeId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	return r, n, nil
}

func (processedEpisodeRecordMUS) Size(r ProcessedEpisodeRecord) (n int) {
	n = ord.String.Size(r.Source)
	n += ord.String.Size(r.SourceId)
	n += ord.String.Size(r.TenantId)
	n += ord.String.Size(r.EpisodeId)
	n += timeSer.Size(r.CreatedAt)
	return n
}

// WebhookEventRecordMUS serializes webhook ledger rows.
var WebhookEventRecordMUS = webhookEventRecordMUS{}

type webhookEventRecordMUS struct{}

func (webhookEventRecordMUS) Marshal(r WebhookEventRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.MessageId, bs)
	n += ord.String.Marshal(r.TenantId, bs[n:])
	n += timeSer.Marshal(r.CreatedAt, bs[n:])
	return n
}

func (webhookEventRecordMUS) Unmarshal(bs []byte) (r WebhookEventRecord, n int, err error) {
	var n1 int
	if r.MessageId, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if r.TenantId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	return r, n, nil
}

func (webhookEventRecordMUS) Size(r WebhookEventRecord) (n int) {
	n = ord.String.Size(r.MessageId)
	n += ord.String.Size(r.TenantId)
	n += timeSer.Size(r.CreatedAt)
	return n
}

// AccountMUS serializes tenant account links.
var AccountMUS = accountMUS{}

type accountMUS struct{}

func (accountMUS) Marshal(a Account, bs []byte) (n int) {
	n = ord.String.Marshal(a.TenantId, bs)
	n += ord.String.Marshal(a.App, bs[n:])
	n += ord.String.Marshal(a.ExternalUserId, bs[n:])
	n += ord.String.Marshal(a.AccountId, bs[n:])
	n += ord.String.Marshal(a.Status, bs[n:])
	n += timeSer.Marshal(a.ConnectedAt, bs[n:])
	return n
}

func (accountMUS) Unmarshal(bs []byte) (a Account, n int, err error) {
	var n1 int
	if a.TenantId, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if a.App, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return a, n + n1, err
	}
	n += n1
	if a.ExternalUserId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return a, n + n1, err
	}
	n += n1
	if a.AccountId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return a, n + n1, err
	}
	n += n1
	if a.Status, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return a, n + n1, err
	}
	n += n1
	if a.ConnectedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return a, n + n1, err
	}
	n += n1
	return a, n, nil
}

func (accountMUS) Size(a Account) (n int) {
	n = ord.String.Size(a.TenantId)
	n += ord.String.Size(a.App)
	n += ord.String.Size(a.ExternalUserId)
	n += ord.String.Size(a.AccountId)
	n += ord.String.Size(a.Status)
	n += timeSer.Size(a.ConnectedAt)
	return n
}

// DocumentMUS serializes cached email documents.
var DocumentMUS = documentMUS{}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = IDMUS.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.TenantId, bs[n:])
	n += ord.String.Marshal(d.MessageId, bs[n:])
	n += ord.String.Marshal(d.ThreadId, bs[n:])
	n += ord.String.Marshal(d.Subject, bs[n:])
	n += ord.String.Marshal(d.Sender, bs[n:])
	n += ord.String.Marshal(d.Recipient, bs[n:])
	n += ord.String.Marshal(d.DateHeader, bs[n:])
	n += ord.String.Marshal(d.Body, bs[n:])
	n += vectorSer.Marshal(d.Vector, bs[n:])
	n += timeSer.Marshal(d.InsertedAt, bs[n:])
	n += timeSer.Marshal(d.UpdatedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	var n1 int
	if d.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if d.TenantId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.MessageId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.ThreadId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Subject, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Sender, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Recipient, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.DateHeader, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Body, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Vector, n1, err = vectorSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	return d, n, nil
}

func (documentMUS) Size(d Document) (n int) {
	n = IDMUS.Size(d.Id)
	n += ord.String.Size(d.TenantId)
	n += ord.String.Size(d.MessageId)
	n += ord.String.Size(d.ThreadId)
	n += ord.String.Size(d.Subject)
	n += ord.String.Size(d.Sender)
	n += ord.String.Size(d.Recipient)
	n += ord.String.Size(d.DateHeader)
	n += ord.String.Size(d.Body)
	n += vectorSer.Size(d.Vector)
	n += timeSer.Size(d.InsertedAt)
	n += timeSer.Size(d.UpdatedAt)
	return n
}
