package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"FamilyWell/internal/model"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	"FamilyWell/internal/testutil"
)

var shanghai = mustLocation("Asia/Shanghai")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fakeVerifier struct {
	mu          sync.Mutex
	verifyCalls int
	verified    bool
	distance    float64
	match       recognition.Match
	embedErr    error
	verifyErr   error
}

func (f *fakeVerifier) Embed(context.Context, image.Image) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeVerifier) Recognize(context.Context, image.Image) (recognition.Match, error) {
	if f.verifyErr != nil {
		return recognition.Match{}, f.verifyErr
	}
	return f.match, nil
}

func (f *fakeVerifier) Verify(context.Context, image.Image, int64) (bool, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return false, 0, f.verifyErr
	}
	return f.verified, f.distance, nil
}

func (f *fakeVerifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

type fakeClassifier struct {
	result *recognition.EmotionResult
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, img image.Image) (*recognition.EmotionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func emotionResult(e model.Emotion, confidence float64) *recognition.EmotionResult {
	probs := model.EmotionProbabilities{}
	rest := (1 - confidence) / float64(len(model.AllEmotions)-1)
	for _, label := range model.AllEmotions {
		probs[label] = rest
	}
	probs[e] = confidence
	return &recognition.EmotionResult{Probabilities: probs, Emotion: e, Confidence: confidence}
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (m *memStore) Save(_ context.Context, key string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return key, nil
}

func (m *memStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishDispatch(_ context.Context, id int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

type sentMail struct {
	to, subject, body string
}

type fakeEmail struct {
	sent []sentMail
	err  error
	// during 在第一次发送过程中执行一次，模拟另一个分发器同时运行
	during func()
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string) error {
	if hook := f.during; hook != nil {
		f.during = nil
		hook()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// env 一套内存库加假依赖
type env struct {
	db         *gorm.DB
	repos      *repository.Repositories
	verifier   *fakeVerifier
	classifier *fakeClassifier
	photos     *memStore
	publisher  *fakePublisher
	email      *fakeEmail
	now        time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	return &env{
		db:         db,
		repos:      repository.New(db),
		verifier:   &fakeVerifier{verified: true, distance: 0.3},
		classifier: &fakeClassifier{result: emotionResult(model.EmotionHappy, 0.8)},
		photos:     newMemStore(),
		publisher:  &fakePublisher{},
		email:      &fakeEmail{},
		now:        time.Date(2026, 10, 15, 9, 25, 0, 0, shanghai),
	}
}

func (e *env) deps() Deps {
	return Deps{
		Repos:          e.repos,
		Photos:         e.photos,
		Verifier:       e.verifier,
		Classifier:     e.classifier,
		Publisher:      e.publisher,
		Email:          e.email,
		Clock:          func() time.Time { return e.now },
		Location:       shanghai,
		Grace:          30 * time.Minute,
		AlertThreshold: 0.7,
		MaxFaceImages:  5,
	}
}

func (e *env) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

// testPhoto 可解码的 PNG
func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	data, err := recognition.EncodePNG(img)
	require.NoError(t, err)
	return data
}
