package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.uber.org/zap"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/metrics"
)

const (
	embedPath   = "/v1/embed"
	emotionPath = "/v1/emotion"
	healthPath  = "/healthz"
)

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type emotionResponse struct {
	Probabilities map[string]float64 `json:"probabilities"`
}

// ModelClient 远程模型服务客户端，同时实现 Embedder 与 Classifier
type ModelClient struct {
	http    *client.Client
	breaker *cache.CircuitBreaker
	baseURL string
	timeout time.Duration
	loaded  atomic.Bool
}

// ModelOption 可选配置
type ModelOption func(*ModelClient)

// WithBreaker 替换默认的全局熔断器
func WithBreaker(b *cache.CircuitBreaker) ModelOption {
	return func(c *ModelClient) {
		c.breaker = b
	}
}

func NewModelClient(baseURL string, timeout time.Duration, opts ...ModelOption) (*ModelClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	hc.Use(tracing.ClientMiddleware())

	c := &ModelClient{
		http:    hc,
		breaker: cache.ModelBreaker,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Load 探测模型服务健康状态，成功后才接受调用
func (c *ModelClient) Load(ctx context.Context) error {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + healthPath)
	req.SetMethod(consts.MethodGet)

	if err := c.http.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	if resp.StatusCode() != consts.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrNotLoaded, resp.StatusCode())
	}

	c.loaded.Store(true)
	logger.Logger.Info("Model server ready", zap.String("url", c.baseURL))
	return nil
}

// Close 之后的调用返回 ErrNotLoaded
func (c *ModelClient) Close() error {
	c.loaded.Store(false)
	return nil
}

func (c *ModelClient) Loaded() bool {
	return c.loaded.Load()
}

func (c *ModelClient) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	start := time.Now()

	var out embedResponse
	err := c.post(ctx, embedPath, img, &out)
	if err == nil && len(out.Embedding) == 0 {
		err = errors.New("model server returned empty embedding")
	}
	metrics.RecordRecognition(ctx, "embed", resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

func (c *ModelClient) Classify(ctx context.Context, img image.Image) (*EmotionResult, error) {
	start := time.Now()

	var out emotionResponse
	err := c.post(ctx, emotionPath, img, &out)
	var result *EmotionResult
	if err == nil {
		probs := make(model.EmotionProbabilities, len(out.Probabilities))
		for label, p := range out.Probabilities {
			probs[model.Emotion(label)] = p
		}
		result, err = ResultFromProbabilities(probs)
	}
	metrics.RecordRecognition(ctx, "classify", resultOf(err), time.Since(start))
	return result, err
}

func (c *ModelClient) post(ctx context.Context, path string, img image.Image, out interface{}) error {
	if !c.loaded.Load() {
		return ErrNotLoaded
	}

	body, err := EncodePNG(img)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return c.breaker.Call(ctx, func() error {
		req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
		defer protocol.ReleaseRequest(req)
		defer protocol.ReleaseResponse(resp)

		req.SetRequestURI(c.baseURL + path)
		req.SetMethod(consts.MethodPost)
		req.Header.SetContentTypeBytes([]byte("image/png"))
		req.SetBody(body)

		if err := c.http.DoTimeout(ctx, req, resp, c.timeout); err != nil {
			return fmt.Errorf("model server %s: %w", path, err)
		}
		if resp.StatusCode() == consts.StatusServiceUnavailable {
			return fmt.Errorf("%w: model server %s returned 503", ErrNotLoaded, path)
		}
		if resp.StatusCode() != consts.StatusOK {
			return fmt.Errorf("model server %s returned %d", path, resp.StatusCode())
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("model server %s: invalid response: %w", path, err)
		}
		return nil
	})
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
