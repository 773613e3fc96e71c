package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/mailgraph/core"
)

// Key prefixes for different data types
const (
	jobRecordPrefix     = "synjob"
	jobTenantPrefix     = "synjobt"
	jobActivePrefix     = "synjoba"
	episodeLedgerPrefix = "epiled"
	webhookLedgerPrefix = "webled"
	accountPrefix       = "accnt"
	docRecordPrefix     = "docrec"
	docMessagePrefix    = "docmsg"
)

// makeJobKey generates a key for a sync job by id.
func makeJobKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobRecordPrefix, id))
}

// makeJobTenantKey generates a composite key for the per-tenant job index.
// Format: prefix:tenant:createdAt:id
func makeJobTenantKey(tenantId string, createdAt time.Time, id string) []byte {
	prefix := jobTenantPrefix + ":" + tenantId + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}

// makePartialJobTenantKey generates the per-tenant job index prefix.
func makePartialJobTenantKey(tenantId string) []byte {
	return []byte(jobTenantPrefix + ":" + tenantId + ":")
}

// makeJobActiveKey generates the per-tenant active job marker key.
func makeJobActiveKey(tenantId string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobActivePrefix, tenantId))
}

// makeEpisodeLedgerKey generates the episode ledger key.
// Format: prefix:source:sourceId:tenant
func makeEpisodeLedgerKey(source, sourceId, tenantId string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s", episodeLedgerPrefix, source, sourceId, tenantId))
}

// makeWebhookLedgerKey generates the webhook ledger key.
// Format: prefix:tenant:messageId
func makeWebhookLedgerKey(tenantId, messageId string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", webhookLedgerPrefix, tenantId, messageId))
}

// makeAccountKey generates the account link key.
// Format: prefix:tenant:app
func makeAccountKey(tenantId, app string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", accountPrefix, tenantId, app))
}

// makeDocumentKey generates a key for a document by id.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", docRecordPrefix, id))
}

// makeDocumentMessageKey generates the message id index key.
// Format: prefix:tenant:messageId
func makeDocumentMessageKey(tenantId, messageId string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", docMessagePrefix, tenantId, messageId))
}
