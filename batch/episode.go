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
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/mailgraph/core"
)

const (
	// Separator joins the per-message blocks of an episode body.
	Separator = "\n\n---EMAIL SEPARATOR---\n\n"

	// DefaultBodyLimit bounds how many bytes of each message body make it
	// into an episode.
	DefaultBodyLimit = 1000

	// SourceGmail tags episodes built from Gmail messages.
	SourceGmail = "gmail"
)

// Builder renders sub-batches into episodes.
type Builder struct {
	bodyLimit int
}

// NewBuilder creates an episode builder. bodyLimit values below 1 fall back
// to DefaultBodyLimit.
func NewBuilder(bodyLimit int) *Builder {
	if bodyLimit < 1 {
		bodyLimit = DefaultBodyLimit
	}
	return &Builder{bodyLimit: bodyLimit}
}

// Build renders one sub-batch into an episode for the given tenant key.
//
// Each message becomes a From/Subject/Date block followed by its truncated,
// sanitized body. The raw Date header is kept verbatim so the extraction
// engine sees the sender's own formatting. The reference time is the oldest
// message's timestamp; Group guarantees that is the first message.
func (b *Builder) Build(tenantKey string, sb core.SubBatch) *core.Episode {
	blocks := make([]string, 0, len(sb.Messages))
	ids := make([]string, 0, len(sb.Messages))

	for _, msg := range sb.Messages {
		blocks = append(blocks, b.renderMessage(msg))
		ids = append(ids, msg.Id)
	}

	date := sb.Date.Format("2006-01-02")
	return &core.Episode{
		Name:              fmt.Sprintf("Gmail %s (batch %d)", date, sb.Index),
		Body:              strings.Join(blocks, Separator),
		SourceDescription: fmt.Sprintf("%d emails from %s", len(sb.Messages), date),
		ReferenceTime:     sb.Messages[0].Timestamp(),
		TenantId:          tenantKey,
		Source:            SourceGmail,
		SourceId:          fmt.Sprintf("%s:%s:%d", SourceGmail, date, sb.Index),
		MessageIds:        ids,
	}
}

// BuildWebhook renders a single real-time message into an episode. Webhook
// episodes are named by subject rather than batch index and keyed by the
// message id, since each delivery carries exactly one message.
func (b *Builder) BuildWebhook(tenantKey string, msg *core.Message) *core.Episode {
	subject := msg.Header("Subject")
	if subject == "" {
		subject = "No Subject"
	}
	date := msg.Timestamp().Format("2006-01-02")

	return &core.Episode{
		Name:              fmt.Sprintf("Gmail Webhook %s - %s", date, Sanitize(subject)),
		Body:              b.renderMessage(msg),
		SourceDescription: "1 email from webhook",
		ReferenceTime:     msg.Timestamp(),
		TenantId:          tenantKey,
		Source:            SourceGmail,
		SourceId:          fmt.Sprintf("%s:webhook:%s", SourceGmail, msg.Id),
		MessageIds:        []string{msg.Id},
	}
}

func (b *Builder) renderMessage(msg *core.Message) string {
	sender := msg.Header("From")
	if sender == "" {
		sender = "Unknown"
	}
	subject := msg.Header("Subject")
	if subject == "" {
		subject = "No Subject"
	}
	dateHeader := msg.Header("Date")
	if dateHeader == "" {
		dateHeader = "Unknown"
	}

	body := msg.PlainTextBody()
	if len(body) > b.bodyLimit {
		// Back off to a rune boundary; a byte cut can split a multi-byte
		// character.
		cut := b.bodyLimit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	return fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
		Sanitize(sender), Sanitize(subject), dateHeader, Sanitize(body))
}
