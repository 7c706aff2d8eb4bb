package model

import (
	"context"
	"os"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

func TestTensorLen(t *testing.T) {
	cases := []struct {
		shape []int64
		want  int
	}{
		{nil, 0},
		{[]int64{1, 3, 4, 4}, 48},
		{[]int64{1, 7}, 7},
	}
	for _, tc := range cases {
		if got := (Tensor{Shape: tc.shape}).Len(); got != tc.want {
			t.Fatalf("shape %v: got %d, want %d", tc.shape, got, tc.want)
		}
	}
}

func TestConcreteShape(t *testing.T) {
	got := concreteShape(ort.NewShape(-1, 3, 224, 224))
	want := []int64{1, 3, 224, 224}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestONNXEngineRejectsEmptyArtifact(t *testing.T) {
	engine := NewONNXEngine(ONNXOptions{})
	if _, err := engine.Load(nil); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}

// TestONNXSessionForward runs a real model when the runtime and a model are
// available, e.g.
//
//	ONNXRUNTIME_SHARED_LIBRARY_PATH=/usr/lib/libonnxruntime.so TEST_ONNX_MODEL=model.onnx go test ./internal/model
func TestONNXSessionForward(t *testing.T) {
	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	modelPath := os.Getenv("TEST_ONNX_MODEL")
	if libPath == "" || modelPath == "" {
		t.Skip("ONNXRUNTIME_SHARED_LIBRARY_PATH and TEST_ONNX_MODEL not set")
	}

	artifact, err := os.ReadFile(modelPath)
	if err != nil {
		t.Fatalf("read model: %v", err)
	}

	engine := NewONNXEngine(ONNXOptions{SharedLibraryPath: libPath, Workers: 2})
	defer engine.Close()

	session, err := engine.Load(artifact)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer session.Close()

	info := session.(*ONNXSession).Info()
	input := Tensor{Shape: concreteShape(info.InputShape)}
	input.Data = make([]float32, input.Len())

	scores, err := session.Forward(context.Background(), input)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if want := (Tensor{Shape: info.OutputShape}).Len(); len(scores) != want {
		t.Fatalf("got %d scores, want %d", len(scores), want)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := session.Forward(context.Background(), input); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
