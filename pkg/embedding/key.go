package embedding

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key 返回 (content, model) 的缓存键
func Key(content, model string) string {
	sum := sha256.Sum256([]byte(content))
	return model + ":" + hex.EncodeToString(sum[:])
}
