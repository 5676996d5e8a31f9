package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/skin-check/internal/failure"
	"github.com/example/skin-check/internal/imageprocessor"
	"github.com/example/skin-check/internal/interpreter"
	"github.com/example/skin-check/internal/repository"
	"github.com/example/skin-check/internal/upload"
)

type stubRepository struct {
	mu        sync.Mutex
	saved     []*repository.Prediction
	saveErr   error
	listed    []*repository.Prediction
	listErr   error
	saveCalls int
}

func (s *stubRepository) Save(ctx context.Context, p *repository.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, p)
	return nil
}

func (s *stubRepository) ListAll(ctx context.Context) ([]*repository.Prediction, error) {
	return s.listed, s.listErr
}

type stubClassifier struct {
	mu    sync.Mutex
	score float32
	err   error
	calls int
}

func (s *stubClassifier) Classify(ctx context.Context, tensor *imageprocessor.Tensor) (float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 224, 224))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestUseCase(repo *stubRepository, classifier *stubClassifier, opts ...Option) *PredictionUseCase {
	return NewPredictionUseCase(repo, imageprocessor.NewDecoder(0, 0), classifier, zap.NewNop(), opts...)
}

func assertKind(t *testing.T, err error, kind failure.Kind) *failure.Failure {
	t.Helper()
	var f *failure.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *failure.Failure, got %T (%v)", err, err)
	}
	if f.Kind != kind {
		t.Fatalf("expected %s, got %s", kind, f.Kind)
	}
	return f
}

func TestPredictStoresCancerResult(t *testing.T) {
	repo := &stubRepository{}
	classifier := &stubClassifier{score: 0.9}
	created := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	uc := newTestUseCase(repo, classifier,
		WithClock(func() time.Time { return created }),
		WithIDGenerator(func() string { return "fixed-id" }))

	p, err := uc.Predict(context.Background(), bytes.NewReader(testPNG(t)), "image/png")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if p.ID != "fixed-id" || p.Result != interpreter.LabelCancer || p.Suggestion != interpreter.SuggestionCancer {
		t.Fatalf("unexpected prediction: %+v", p)
	}
	if !p.CreatedAt.Equal(created) {
		t.Fatalf("unexpected createdAt: %v", p.CreatedAt)
	}
	if len(repo.saved) != 1 || repo.saved[0] != p {
		t.Fatalf("expected prediction to be saved once, got %d", len(repo.saved))
	}
}

func TestPredictNonCancerAtThreshold(t *testing.T) {
	repo := &stubRepository{}
	uc := newTestUseCase(repo, &stubClassifier{score: 0.5})

	p, err := uc.Predict(context.Background(), bytes.NewReader(testPNG(t)), "")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if p.Result != interpreter.LabelNonCancer || p.Suggestion != interpreter.SuggestionNonCancer {
		t.Fatalf("unexpected prediction: %+v", p)
	}
}

func TestPredictOversizedNeverReachesModelOrStore(t *testing.T) {
	repo := &stubRepository{}
	classifier := &stubClassifier{score: 0.9}
	uc := newTestUseCase(repo, classifier)

	_, err := uc.Predict(context.Background(), bytes.NewReader(make([]byte, 1_500_000)), "image/png")
	f := assertKind(t, err, failure.Validation)
	if f.Message != upload.SizeLimitMessage(upload.DefaultMaxBytes) {
		t.Fatalf("unexpected message: %q", f.Message)
	}
	if classifier.calls != 0 || repo.saveCalls != 0 {
		t.Fatalf("expected no classifier or store calls, got %d and %d", classifier.calls, repo.saveCalls)
	}
}

func TestPredictMissingImage(t *testing.T) {
	uc := newTestUseCase(&stubRepository{}, &stubClassifier{})

	_, err := uc.Predict(context.Background(), nil, "")
	f := assertKind(t, err, failure.Validation)
	if f.Message != failure.MessageNoImage {
		t.Fatalf("unexpected message: %q", f.Message)
	}
}

func TestPredictUndecodableImageIsInferenceError(t *testing.T) {
	repo := &stubRepository{}
	classifier := &stubClassifier{score: 0.9}
	uc := newTestUseCase(repo, classifier)

	_, err := uc.Predict(context.Background(), bytes.NewReader([]byte("not an image")), "image/png")
	f := assertKind(t, err, failure.Inference)
	if f.PublicMessage() != failure.MessageInference {
		t.Fatalf("unexpected message: %q", f.PublicMessage())
	}
	if classifier.calls != 0 || repo.saveCalls != 0 {
		t.Fatal("later stages must not run after a decode failure")
	}
}

func TestPredictModelFailureIsInferenceError(t *testing.T) {
	repo := &stubRepository{}
	uc := newTestUseCase(repo, &stubClassifier{err: errors.New("onnx: run failed")})

	_, err := uc.Predict(context.Background(), bytes.NewReader(testPNG(t)), "")
	assertKind(t, err, failure.Inference)
	if repo.saveCalls != 0 {
		t.Fatal("store must not be called after an inference failure")
	}
}

func TestPredictStorageFailure(t *testing.T) {
	repo := &stubRepository{saveErr: errors.New("dial tcp: connection refused")}
	uc := newTestUseCase(repo, &stubClassifier{score: 0.9})

	p, err := uc.Predict(context.Background(), bytes.NewReader(testPNG(t)), "")
	if p != nil {
		t.Fatalf("expected no prediction on storage failure, got %+v", p)
	}
	f := assertKind(t, err, failure.Storage)
	if f.StatusCode() != 500 {
		t.Fatalf("unexpected status: %d", f.StatusCode())
	}
	if repo.saveCalls != 1 {
		t.Fatalf("expected a single save attempt, got %d", repo.saveCalls)
	}
}

func TestPredictConcurrentRequestsGetUniqueIDs(t *testing.T) {
	repo := &stubRepository{}
	uc := newTestUseCase(repo, &stubClassifier{score: 0.2})
	img := testPNG(t)

	const requests = 16
	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.Predict(context.Background(), bytes.NewReader(img), "image/png"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[string]bool{}
	for _, p := range repo.saved {
		if seen[p.ID] {
			t.Fatalf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
	if len(seen) != requests {
		t.Fatalf("expected %d ids, got %d", requests, len(seen))
	}
}

func TestHistoriesWrapsStorageError(t *testing.T) {
	uc := newTestUseCase(&stubRepository{listErr: fmt.Errorf("timeout")}, &stubClassifier{})

	_, err := uc.Histories(context.Background())
	f := assertKind(t, err, failure.Storage)
	if f.Message != failure.MessageHistories {
		t.Fatalf("unexpected message: %q", f.Message)
	}
}

func TestHistoriesReturnsStoredPredictions(t *testing.T) {
	stored := []*repository.Prediction{{ID: "a"}, {ID: "b"}}
	uc := newTestUseCase(&stubRepository{listed: stored}, &stubClassifier{})

	got, err := uc.Histories(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("unexpected predictions: %+v", got)
	}
}
