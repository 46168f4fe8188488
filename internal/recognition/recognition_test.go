package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, image.Image) ([]float32, error) {
	return f.vec, f.err
}

type staticTemplates []model.FaceTemplate

func (s staticTemplates) ListActiveTemplates(context.Context) ([]model.FaceTemplate, error) {
	out := make([]model.FaceTemplate, len(s))
	copy(out, s)
	return out, nil
}

func template(userID int64, vec ...float32) model.FaceTemplate {
	return *model.NewFaceTemplate(userID, vec, "", 1)
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}

func TestRecognizeWithoutTemplates(t *testing.T) {
	v := NewIdentityVerifier(&fakeEmbedder{vec: []float32{0, 0}}, staticTemplates(nil), 0.6)

	match, err := v.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.False(t, match.Found)
	assert.Equal(t, 1.0, match.Distance)
}

func TestRecognizePicksNearestUnderThreshold(t *testing.T) {
	templates := staticTemplates{
		template(1, 1, 0),
		template(2, 0.3, 0),
		template(3, 5, 5),
	}
	v := NewIdentityVerifier(&fakeEmbedder{vec: []float32{0, 0}}, templates, 0.6)

	match, err := v.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.True(t, match.Found)
	assert.Equal(t, int64(2), match.UserID)
	assert.InDelta(t, 0.3, match.Distance, 1e-6)

	ok, dist, err := v.Verify(context.Background(), testImage(), 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, dist, 1e-6)

	ok, _, err = v.Verify(context.Background(), testImage(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecognizeRejectsAtThreshold(t *testing.T) {
	v := NewIdentityVerifier(&fakeEmbedder{vec: []float32{0, 0}}, staticTemplates{template(1, 0.6, 0)}, 0.6)

	match, err := v.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.False(t, match.Found)
	assert.InDelta(t, 0.6, match.Distance, 1e-6)
}

func TestRecognizeSkipsMismatchedDimensions(t *testing.T) {
	v := NewIdentityVerifier(&fakeEmbedder{vec: []float32{0, 0}}, staticTemplates{template(1, 0.1, 0, 0)}, 0.6)

	match, err := v.Recognize(context.Background(), testImage())
	require.NoError(t, err)
	assert.False(t, match.Found)
	assert.Equal(t, 1.0, match.Distance)
}

func TestRecognizePropagatesEmbedError(t *testing.T) {
	v := NewIdentityVerifier(&fakeEmbedder{err: ErrNotLoaded}, staticTemplates{template(1, 0)}, 0.6)

	_, err := v.Recognize(context.Background(), testImage())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestResultFromProbabilities(t *testing.T) {
	res, err := ResultFromProbabilities(model.EmotionProbabilities{
		model.EmotionHappy:   0.4,
		model.EmotionSad:     0.4,
		model.EmotionNeutral: 0.2,
	})
	require.NoError(t, err)
	// 并列时取标签顺序中靠前的 happy
	assert.Equal(t, model.EmotionHappy, res.Emotion)
	assert.Equal(t, 0.4, res.Confidence)

	_, err = ResultFromProbabilities(nil)
	assert.Error(t, err)
}

func TestDecodePayload(t *testing.T) {
	raw, err := EncodePNG(testImage())
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(raw)

	for _, payload := range []string{encoded, "data:image/png;base64," + encoded} {
		data, err := DecodePayload(payload)
		require.NoError(t, err)
		img, err := DecodeImage(data)
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
	}

	_, err = DecodePayload("data:image/png;base64")
	assert.ErrorIs(t, err, ErrInvalidImage)
	_, err = DecodeImage([]byte("not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestNormalize(t *testing.T) {
	gray := NormalizeForEmotion(testImage())
	assert.Equal(t, image.Rect(0, 0, 48, 48), gray.Bounds())

	r, g, b, _ := gray.At(10, 10).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)

	assert.Equal(t, image.Rect(0, 0, 112, 112), NormalizeForEmbedding(testImage()).Bounds())
}

func newModelServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(emotionPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probabilities":{"angry":0.05,"sad":0.8,"neutral":0.15}}`))
	})
	mux.HandleFunc(embedPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestModelClientLifecycle(t *testing.T) {
	srv := newModelServer(t)
	ctx := context.Background()

	c, err := NewModelClient(srv.URL, 2*time.Second, WithBreaker(cache.NewCircuitBreaker("test", 5, time.Minute)))
	require.NoError(t, err)

	_, err = c.Classify(ctx, testImage())
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, c.Load(ctx))
	res, err := c.Classify(ctx, NormalizeForEmotion(testImage()))
	require.NoError(t, err)
	assert.Equal(t, model.EmotionSad, res.Emotion)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)

	_, err = c.Embed(ctx, testImage())
	assert.True(t, errors.Is(err, ErrNotLoaded))

	require.NoError(t, c.Close())
	assert.False(t, c.Loaded())
}
