package qrcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	goqr "github.com/skip2/go-qrcode"
)

// 载荷格式常量
const (
	PayloadPrefix = "HARVEST_CARD|"
	PayloadType   = "Harvest_Traceability"

	fieldSeparator = "|"
	keySeparator   = ":"

	KeyID        = "ID"
	KeyApp       = "APP"
	KeyType      = "TYPE"
	KeyTimestamp = "TIMESTAMP"
	KeyVerifyURL = "VERIFY_URL"
)

// 图片尺寸
const (
	DefaultSize = 512
	MinSize     = 256
)

var (
	// ErrEmptyScan 扫描内容为空
	ErrEmptyScan = errors.New("empty scan")
	// ErrMissingCardID 载荷缺少 ID 字段
	ErrMissingCardID = errors.New("payload has no card id")
	// ErrNotHarvestPayload 不是收获卡载荷
	ErrNotHarvestPayload = errors.New("not a harvest card payload")
)

// Payload 二维码载荷
type Payload struct {
	CardID    string            `json:"card_id"`
	AppTag    string            `json:"app_tag"`
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"` // 毫秒
	VerifyURL string            `json:"verify_url"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// String 编码为二维码文本
func (p Payload) String() string {
	var b strings.Builder
	b.WriteString(PayloadPrefix)
	b.WriteString(KeyID + keySeparator + p.CardID)
	b.WriteString(fieldSeparator + KeyApp + keySeparator + p.AppTag)
	b.WriteString(fieldSeparator + KeyType + keySeparator + p.Type)
	b.WriteString(fieldSeparator + KeyTimestamp + keySeparator + strconv.FormatInt(p.Timestamp, 10))
	b.WriteString(fieldSeparator + KeyVerifyURL + keySeparator + p.VerifyURL)
	return b.String()
}

// Codec 二维码编解码器
type Codec struct {
	AppTag        string
	VerifyBaseURL string
	Size          int
	Level         goqr.RecoveryLevel
}

// NewCodec 根据配置创建编解码器
func NewCodec(cfg config.QRConfig) *Codec {
	size := cfg.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < MinSize {
		size = MinSize
	}
	return &Codec{
		AppTag:        cfg.AppTag,
		VerifyBaseURL: strings.TrimRight(cfg.VerifyBaseURL, "/"),
		Size:          size,
		Level:         ParseRecoveryLevel(cfg.RecoveryLevel),
	}
}

// ParseRecoveryLevel 解析纠错等级,未知值使用 Medium
func ParseRecoveryLevel(level string) goqr.RecoveryLevel {
	switch strings.ToLower(level) {
	case "low":
		return goqr.Low
	case "high":
		return goqr.High
	case "highest":
		return goqr.Highest
	default:
		return goqr.Medium
	}
}

// VerifyURL 返回收获卡的核验地址
func (c *Codec) VerifyURL(cardID string) string {
	return c.VerifyBaseURL + "/" + cardID
}

// BuildPayload 构造收获卡载荷
func (c *Codec) BuildPayload(cardID string, now time.Time) Payload {
	return Payload{
		CardID:    cardID,
		AppTag:    c.AppTag,
		Type:      PayloadType,
		Timestamp: now.UnixMilli(),
		VerifyURL: c.VerifyURL(cardID),
	}
}

// ParsePayload 解析带前缀的收获卡载荷
// 字段顺序任意,键值按第一个 ':' 切分,未知字段保留在 Extra 中
func ParsePayload(text string) (*Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyScan
	}
	if !strings.HasPrefix(text, PayloadPrefix) {
		return nil, ErrNotHarvestPayload
	}

	p := &Payload{}
	for _, field := range strings.Split(strings.TrimPrefix(text, PayloadPrefix), fieldSeparator) {
		key, value, ok := strings.Cut(field, keySeparator)
		if !ok {
			continue
		}
		switch key {
		case KeyID:
			// 以第一个非空 ID 为准
			if p.CardID == "" {
				p.CardID = strings.TrimSpace(value)
			}
		case KeyApp:
			p.AppTag = value
		case KeyType:
			p.Type = value
		case KeyTimestamp:
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
			}
			p.Timestamp = ts
		case KeyVerifyURL:
			p.VerifyURL = value
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[key] = value
		}
	}

	if p.CardID == "" {
		return nil, ErrMissingCardID
	}
	return p, nil
}

// ExtractCardID 从扫描文本中提取收获卡 ID
// 非收获卡格式的文本按旧版裸编码原样返回,legacy 为 true
func ExtractCardID(text string) (cardID string, legacy bool, err error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false, ErrEmptyScan
	}
	if !strings.HasPrefix(trimmed, PayloadPrefix) {
		return trimmed, true, nil
	}

	// 只需要 ID 字段,其他字段格式错误不影响提取
	for _, field := range strings.Split(strings.TrimPrefix(trimmed, PayloadPrefix), fieldSeparator) {
		key, value, ok := strings.Cut(field, keySeparator)
		if ok && key == KeyID && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), false, nil
		}
	}
	return "", false, ErrMissingCardID
}
