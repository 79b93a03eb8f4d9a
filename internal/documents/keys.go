package documents

import (
	"invoice-backend/internal/shared/util"
)

// StorageKey builds the object key for a document, namespaced per
// organization: documents/{orgId}/{uuid}[-{sanitizedFilename}].
func StorageKey(orgID, id, fileName string) string {
	key := "documents/" + orgID + "/" + id
	if sanitized, err := util.SanitizeFileName(fileName); err == nil {
		key += "-" + sanitized
	}
	return key
}
