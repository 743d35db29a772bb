package artifacts

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkMirror(t *testing.T) {
	fp := &fakePutter{}
	sink := NewS3Sink(fp, "meals", "/processed/")

	loc, err := sink.Mirror(context.Background(), "001.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if loc != "s3://meals/processed/001.jpg" {
		t.Errorf("loc = %q", loc)
	}
	if len(fp.inputs) != 1 {
		t.Fatalf("puts = %d, want 1", len(fp.inputs))
	}
	in := fp.inputs[0]
	if aws.ToString(in.Bucket) != "meals" || aws.ToString(in.Key) != "processed/001.jpg" {
		t.Errorf("bucket/key = %q/%q", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != "image/jpeg" || string(fp.bodies[0]) != "jpeg" {
		t.Errorf("content type %q body %q", aws.ToString(in.ContentType), fp.bodies[0])
	}
}

func TestS3SinkNoPrefix(t *testing.T) {
	if got := NewS3Sink(&fakePutter{}, "b", "").Key("x.jpg"); got != "x.jpg" {
		t.Errorf("Key = %q, want x.jpg", got)
	}
}

func TestS3SinkError(t *testing.T) {
	boom := errors.New("denied")
	_, err := NewS3Sink(&fakePutter{err: boom}, "b", "p").Mirror(context.Background(), "x.jpg", nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
