package qrcode

import (
	"bytes"
	"image/png"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	goqr "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec() *Codec {
	return NewCodec(config.QRConfig{
		AppTag:        "Kerala_Farm_Assistant",
		VerifyBaseURL: "https://keralafarm.app/verify/",
		Size:          512,
		RecoveryLevel: "medium",
	})
}

// TestNewCardID_Format 测试 ID 格式
func TestNewCardID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^HC[0-9A-F]{32}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, pattern, NewCardID())
	}
}

// TestNewCardID_Unique 测试批量生成不重复
func TestNewCardID_Unique(t *testing.T) {
	const n = 100000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewCardID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

// TestNewCodec_Defaults 测试编解码器默认值
func TestNewCodec_Defaults(t *testing.T) {
	c := NewCodec(config.QRConfig{AppTag: "x", VerifyBaseURL: "https://a/b"})
	assert.Equal(t, DefaultSize, c.Size)
	assert.Equal(t, goqr.Medium, c.Level)

	c = NewCodec(config.QRConfig{Size: 100, RecoveryLevel: "HIGH"})
	assert.Equal(t, MinSize, c.Size)
	assert.Equal(t, goqr.High, c.Level)
}

// TestBuildPayload_String 测试载荷文本格式
func TestBuildPayload_String(t *testing.T) {
	c := testCodec()
	now := time.UnixMilli(1700000000123)

	p := c.BuildPayload("HC0123", now)
	assert.Equal(t,
		"HARVEST_CARD|ID:HC0123|APP:Kerala_Farm_Assistant|TYPE:Harvest_Traceability|TIMESTAMP:1700000000123|VERIFY_URL:https://keralafarm.app/verify/HC0123",
		p.String())
}

// TestParsePayload_RoundTrip 测试编码后解析得到相同字段
func TestParsePayload_RoundTrip(t *testing.T) {
	c := testCodec()
	id := NewCardID()
	p := c.BuildPayload(id, time.Now())

	parsed, err := ParsePayload(p.String())
	require.NoError(t, err)
	assert.Equal(t, p.CardID, parsed.CardID)
	assert.Equal(t, p.AppTag, parsed.AppTag)
	assert.Equal(t, p.Type, parsed.Type)
	assert.Equal(t, p.Timestamp, parsed.Timestamp)
	assert.Equal(t, p.VerifyURL, parsed.VerifyURL)
	assert.Nil(t, parsed.Extra)
}

// TestParsePayload_AnyOrderAndExtraFields 测试字段乱序和未知字段
func TestParsePayload_AnyOrderAndExtraFields(t *testing.T) {
	text := "HARVEST_CARD|VERIFY_URL:https://x.test:8443/verify/HC9|LOT:42|ID:HC9|NOTE:a:b:c"
	p, err := ParsePayload(text)
	require.NoError(t, err)
	assert.Equal(t, "HC9", p.CardID)
	assert.Equal(t, "https://x.test:8443/verify/HC9", p.VerifyURL)
	assert.Equal(t, map[string]string{"LOT": "42", "NOTE": "a:b:c"}, p.Extra)
}

// TestParsePayload_Errors 测试解析失败
func TestParsePayload_Errors(t *testing.T) {
	_, err := ParsePayload("   ")
	assert.ErrorIs(t, err, ErrEmptyScan)

	_, err = ParsePayload("HC123")
	assert.ErrorIs(t, err, ErrNotHarvestPayload)

	_, err = ParsePayload("HARVEST_CARD|APP:x|TYPE:y")
	assert.ErrorIs(t, err, ErrMissingCardID)

	_, err = ParsePayload("HARVEST_CARD|ID:HC1|TIMESTAMP:soon")
	assert.Error(t, err)
}

// TestExtractCardID 测试提取收获卡 ID
func TestExtractCardID(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantID     string
		wantLegacy bool
		wantErr    error
	}{
		{"full payload", testCodec().BuildPayload("HC42", time.Now()).String(), "HC42", false, nil},
		{"id not first", "HARVEST_CARD|APP:x|ID:HC7", "HC7", false, nil},
		{"bad timestamp ignored", "HARVEST_CARD|ID:HC7|TIMESTAMP:soon", "HC7", false, nil},
		{"legacy bare code", "  HC17000000001 \n", "HC17000000001", true, nil},
		{"empty", "", "", false, ErrEmptyScan},
		{"whitespace", " \t\n", "", false, ErrEmptyScan},
		{"no id field", "HARVEST_CARD|APP:x|TYPE:y", "", false, ErrMissingCardID},
		{"empty id field", "HARVEST_CARD|ID:|APP:x", "", false, ErrMissingCardID},
		{"prefix only", "HARVEST_CARD|", "", false, ErrMissingCardID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, legacy, err := ExtractCardID(tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantLegacy, legacy)
		})
	}
}

// TestRender_Size 测试渲染尺寸
func TestRender_Size(t *testing.T) {
	c := testCodec()
	data, err := c.Render(c.BuildPayload(NewCardID(), time.Now()))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 512, img.Bounds().Dy())
}

// TestRender_DecodeImage 测试渲染后识别得到原文本
func TestRender_DecodeImage(t *testing.T) {
	c := testCodec()
	p := c.BuildPayload(NewCardID(), time.Now())

	data, err := c.Render(p)
	require.NoError(t, err)

	text, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, p.String(), text)

	id, legacy, err := ExtractCardID(text)
	require.NoError(t, err)
	assert.False(t, legacy)
	assert.Equal(t, p.CardID, id)
}

// TestRenderBase64 测试 base64 输出
func TestRenderBase64(t *testing.T) {
	c := testCodec()
	s, err := c.RenderBase64(c.BuildPayload("HC1", time.Now()))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "iVBOR"))
}

// TestDecodeImage_Invalid 测试非图片输入
func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage(strings.NewReader("not an image"))
	assert.Error(t, err)

	_, err = testCodec().RenderText("")
	assert.ErrorIs(t, err, ErrEmptyScan)
}
