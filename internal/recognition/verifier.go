package recognition

import (
	"context"
	"image"
	"math"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/metrics"
)

// noTemplateDistance 没有任何模板时返回的距离
const noTemplateDistance = 1.0

// TemplateSource 提供全部活跃用户的模板，每次调用返回新切片
type TemplateSource interface {
	ListActiveTemplates(ctx context.Context) ([]model.FaceTemplate, error)
}

// IdentityVerifier 对已注册模板做线性最近邻搜索
type IdentityVerifier struct {
	embedder  Embedder
	templates TemplateSource
	threshold float64
}

func NewIdentityVerifier(embedder Embedder, templates TemplateSource, threshold float64) *IdentityVerifier {
	return &IdentityVerifier{
		embedder:  embedder,
		templates: templates,
		threshold: threshold,
	}
}

func (v *IdentityVerifier) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	return v.embedder.Embed(ctx, NormalizeForEmbedding(img))
}

// Recognize 最小距离严格小于阈值才算匹配
func (v *IdentityVerifier) Recognize(ctx context.Context, img image.Image) (Match, error) {
	start := time.Now()

	query, err := v.Embed(ctx, img)
	if err != nil {
		metrics.RecordRecognition(ctx, "recognize", "error", time.Since(start))
		return Match{}, err
	}

	templates, err := v.templates.ListActiveTemplates(ctx)
	if err != nil {
		metrics.RecordRecognition(ctx, "recognize", "error", time.Since(start))
		return Match{}, err
	}

	match := nearest(query, templates)
	match.Found = match.Distance < v.threshold && match.UserID != 0

	result := "no_match"
	if match.Found {
		result = "match"
	}
	metrics.RecordRecognition(ctx, "recognize", result, time.Since(start))
	return match, nil
}

// Verify 识别出的用户必须是声明的用户
func (v *IdentityVerifier) Verify(ctx context.Context, img image.Image, userID int64) (bool, float64, error) {
	match, err := v.Recognize(ctx, img)
	if err != nil {
		return false, 0, err
	}
	return match.Found && match.UserID == userID, match.Distance, nil
}

func nearest(query []float32, templates []model.FaceTemplate) Match {
	best := Match{Distance: math.Inf(1)}
	for i := range templates {
		vec, err := model.DecodeVector(templates[i].Vector)
		if err != nil || len(vec) != len(query) {
			logger.Logger.Warn("Skipping malformed face template",
				zap.Int64("template_id", templates[i].ID),
				zap.Int("dims", len(vec)),
				zap.Int("expected", len(query)),
			)
			continue
		}
		if d := euclidean(query, vec); d < best.Distance {
			best = Match{UserID: templates[i].UserID, Distance: d}
		}
	}
	if math.IsInf(best.Distance, 1) {
		return Match{Distance: noTemplateDistance}
	}
	return best
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
