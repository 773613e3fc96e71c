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


package storage

import (
	"github.com/poiesic/mailgraph/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalSyncJob serializes a SyncJob to bytes.
func MarshalSyncJob(job *core.SyncJob) []byte {
	buf := make([]byte, core.SyncJobMUS.Size(*job))
	core.SyncJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalSyncJob deserializes a SyncJob from bytes.
func UnmarshalSyncJob(data []byte) (*core.SyncJob, error) {
	job, _, err := core.SyncJobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarshalProcessedEpisode serializes a ProcessedEpisodeRecord to bytes.
func MarshalProcessedEpisode(record *core.ProcessedEpisodeRecord) []byte {
	buf := make([]byte, core.ProcessedEpisodeRecordMUS.Size(*record))
	core.ProcessedEpisodeRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalProcessedEpisode deserializes a ProcessedEpisodeRecord from bytes.
func UnmarshalProcessedEpisode(data []byte) (*core.ProcessedEpisodeRecord, error) {
	record, _, err := core.ProcessedEpisodeRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalWebhookEvent serializes a WebhookEventRecord to bytes.
func MarshalWebhookEvent(record *core.WebhookEventRecord) []byte {
	buf := make([]byte, core.WebhookEventRecordMUS.Size(*record))
	core.WebhookEventRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalWebhookEvent deserializes a WebhookEventRecord from bytes.
func UnmarshalWebhookEvent(data []byte) (*core.WebhookEventRecord, error) {
	record, _, err := core.WebhookEventRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalAccount serializes an Account to bytes.
func MarshalAccount(account *core.Account) []byte {
	buf := make([]byte, core.AccountMUS.Size(*account))
	core.AccountMUS.Marshal(*account, buf)
	return buf
}

// UnmarshalAccount deserializes an Account from bytes.
func UnmarshalAccount(data []byte) (*core.Account, error) {
	account, _, err := core.AccountMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
