// Package recognition 人脸特征提取、身份比对与表情分类
package recognition

import (
	"context"
	"errors"
	"image"

	"FamilyWell/internal/model"
)

var (
	// ErrNotLoaded 模型尚未加载或模型服务不可用
	ErrNotLoaded = errors.New("recognition model not loaded")
	// ErrInvalidImage 图片无法解码
	ErrInvalidImage = errors.New("image cannot be decoded")
)

// EmotionResult 一次表情分类结果
type EmotionResult struct {
	Probabilities model.EmotionProbabilities
	Emotion       model.Emotion
	Confidence    float64
}

// Embedder 提取人脸特征向量
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Classifier 对灰度人脸图像做七分类
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*EmotionResult, error)
}

// Verifier 身份比对
type Verifier interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Recognize(ctx context.Context, img image.Image) (Match, error)
	Verify(ctx context.Context, img image.Image, userID int64) (bool, float64, error)
}

// Match 最近邻比对结果，Found 为 false 时 UserID 无意义
type Match struct {
	UserID   int64
	Distance float64
	Found    bool
}

// ResultFromProbabilities 取概率最大的标签，并列时取 AllEmotions 中靠前的
func ResultFromProbabilities(probs model.EmotionProbabilities) (*EmotionResult, error) {
	if len(probs) == 0 {
		return nil, errors.New("empty emotion probabilities")
	}

	best := model.Emotion("")
	bestP := -1.0
	for _, e := range model.AllEmotions {
		p, ok := probs[e]
		if ok && p > bestP {
			best, bestP = e, p
		}
	}
	if best == "" {
		return nil, errors.New("no known emotion label in probabilities")
	}

	return &EmotionResult{
		Probabilities: probs,
		Emotion:       best,
		Confidence:    bestP,
	}, nil
}
