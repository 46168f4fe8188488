package recognition

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 注册 webp 解码器
)

const (
	emotionInputSize = 48
	embedInputSize   = 112
	jpegQuality      = 90
)

// DecodeImage 解码 jpeg/png/gif/bmp/tiff/webp，按 EXIF 方向校正
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// DecodePayload 接受 data URI 或裸 base64
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data uri", ErrInvalidImage)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// 部分客户端不带 padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}

// NormalizeForEmotion 灰度化并缩放为 48x48
func NormalizeForEmotion(img image.Image) image.Image {
	return imaging.Resize(imaging.Grayscale(img), emotionInputSize, emotionInputSize, imaging.Lanczos)
}

// NormalizeForEmbedding 居中裁剪为 112x112
func NormalizeForEmbedding(img image.Image) image.Image {
	return imaging.Fill(img, embedInputSize, embedInputSize, imaging.Center, imaging.Lanczos)
}

// EncodeJPEG 照片统一以 JPEG 落盘
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG 发送给模型服务的无损格式
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
