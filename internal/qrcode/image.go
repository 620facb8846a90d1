package qrcode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器
	"io"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	goqr "github.com/skip2/go-qrcode"
)

// Render 将载荷渲染为 PNG 图片(黑白,正方形)
func (c *Codec) Render(p Payload) ([]byte, error) {
	return c.RenderText(p.String())
}

// RenderText 将任意文本渲染为 PNG 图片
func (c *Codec) RenderText(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyScan
	}
	code, err := goqr.New(text, c.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	png, err := code.PNG(c.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}

// RenderBase64 渲染 PNG 并返回 base64 编码
func (c *Codec) RenderBase64(p Payload) (string, error) {
	png, err := c.Render(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// DecodeImage 识别图片中的二维码并返回其文本
func DecodeImage(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("no qr code found: %w", err)
	}
	return result.GetText(), nil
}

// DecodeBytes 识别内存中的图片
func DecodeBytes(data []byte) (string, error) {
	return DecodeImage(bytes.NewReader(data))
}
