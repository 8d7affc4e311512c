package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	info, err := s.Put(ctx, "artifacts/1/report.txt", strings.NewReader("evidence"), PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("evidence")) || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "artifacts/1/report.txt", strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "artifacts/1/report.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "evidence" || got.ETag != info.ETag {
		t.Fatalf("unexpected content %q info %+v", data, got)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("expected traversal rejected")
	}
	ok, err := s.Delete(ctx, "artifacts/1/report.txt")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, "artifacts/1/report.txt")
	if err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exerciseStore(t, s)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", s, err)
	}
	s, err = Open(context.Background(), Config{Root: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs default: %v %v", s, err)
	}
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.types[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ContentLength: aws.Int64(int64(len(data))),
		ContentType: aws.String(f.types[*in.Key]), ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), ContentType: aws.String(f.types[*in.Key]), ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreWithPrefix(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	s := &S3{client: fake, bucket: "evidence", prefix: "cisline"}
	exerciseStore(t, s)
	if _, err := s.Put(context.Background(), "a/b", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := fake.objects["cisline/a/b"]; !ok {
		t.Fatalf("expected prefixed key, have %v", fake.objects)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
