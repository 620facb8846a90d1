package qrcode

import (
	"strings"

	"github.com/google/uuid"
)

// CardIDPrefix 收获卡 ID 前缀
const CardIDPrefix = "HC"

// NewCardID 生成新的收获卡 ID
// 格式: "HC" + 随机 UUID(v4) 的 32 位大写十六进制
func NewCardID() string {
	id := uuid.New()
	return CardIDPrefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
