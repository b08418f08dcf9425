package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type storageFake struct {
	objects map[string][]byte
	err     error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type formatsFake struct{}

func (formatsFake) Supports(filename string) bool {
	return strings.HasSuffix(filename, ".pdf")
}

type queueFake struct {
	published []domain.RunRequest
	err       error
}

func (f *queueFake) PublishAnalysisRequested(_ context.Context, req domain.RunRequest) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeAnalysisRequested(context.Context, func(context.Context, domain.RunRequest) error) error {
	return errors.New("not implemented")
}

func TestUploadStoresSanitizedKey(t *testing.T) {
	storage := &storageFake{}
	uc := NewUploadDocumentUseCase(storage, formatsFake{})

	key, err := uc.Upload(context.Background(), "../Annual Report 2024.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(key, "uploads/") || !strings.HasSuffix(key, "_Annual_Report_2024.pdf") {
		t.Fatalf("unexpected storage key: %s", key)
	}
	if string(storage.objects[key]) != "pdf-bytes" {
		t.Fatalf("unexpected stored body: %q", storage.objects[key])
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	uc := NewUploadDocumentUseCase(&storageFake{}, formatsFake{})

	_, err := uc.Upload(context.Background(), "photo.png", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestUploadStorageError(t *testing.T) {
	uc := NewUploadDocumentUseCase(&storageFake{err: errors.New("disk full")}, nil)

	if _, err := uc.Upload(context.Background(), "a.pdf", strings.NewReader("x")); err == nil {
		t.Fatalf("expected storage error")
	}
}

func TestEnqueueAssignsJobID(t *testing.T) {
	sessions := newSessionStoreFake(&domain.Session{ID: "s1"})
	queue := &queueFake{}
	uc := NewEnqueueAnalysisUseCase(sessions, queue)

	req, err := uc.Enqueue(context.Background(), domain.RunRequest{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !strings.HasPrefix(req.JobID, "job_") || len(req.JobID) != len("job_")+12 {
		t.Fatalf("unexpected job id: %s", req.JobID)
	}
	if len(queue.published) != 1 || queue.published[0] != req {
		t.Fatalf("unexpected published requests: %+v", queue.published)
	}
}

func TestEnqueueKeepsCallerJobID(t *testing.T) {
	queue := &queueFake{}
	uc := NewEnqueueAnalysisUseCase(newSessionStoreFake(&domain.Session{ID: "s1"}), queue)

	req, err := uc.Enqueue(context.Background(), domain.RunRequest{SessionID: "s1", JobID: "job_resume00001"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if req.JobID != "job_resume00001" {
		t.Fatalf("job id was replaced: %s", req.JobID)
	}
}

func TestEnqueueUnknownSession(t *testing.T) {
	queue := &queueFake{}
	uc := NewEnqueueAnalysisUseCase(newSessionStoreFake(), queue)

	_, err := uc.Enqueue(context.Background(), domain.RunRequest{SessionID: "missing"})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestEnqueuePublishError(t *testing.T) {
	uc := NewEnqueueAnalysisUseCase(newSessionStoreFake(&domain.Session{ID: "s1"}), &queueFake{err: errors.New("nats down")})

	if _, err := uc.Enqueue(context.Background(), domain.RunRequest{SessionID: "s1"}); err == nil {
		t.Fatalf("expected publish error")
	}
}
