package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const originDomain = "reliefdesk/origin/v1"

// OriginID is the stable identity of one revision of a source item. Fields
// are separated by a null byte so no two inputs share an encoding.
func OriginID(source string, item core.SyncItem) string {
	h := sha256.New()
	for _, part := range []string{
		originDomain,
		source,
		item.ID,
		strconv.FormatInt(item.Modified.UnixNano(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}
