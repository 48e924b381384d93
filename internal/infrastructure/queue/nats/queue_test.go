package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

func TestHandleJobDecodesAndReturnsResult(t *testing.T) {
	var got domain.AnalysisJob
	reply := handleJob(context.Background(), []byte(`{"image_key":"img-1.png","cultures":["Japan"],"use_multiple_wiki_pages":true,"model_name":"qwen_vl"}`),
		func(_ context.Context, job domain.AnalysisJob) (*domain.AnalysisResult, error) {
			got = job
			return &domain.AnalysisResult{SessionID: "s-1"}, nil
		})

	if reply.Error != "" || reply.Result == nil || reply.Result.SessionID != "s-1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if got.ImageKey != "img-1.png" || !got.MultiContext || got.JudgmentModel != "qwen_vl" {
		t.Fatalf("unexpected decoded job: %+v", got)
	}
}

func TestHandleJobReportsDecodeAndHandlerErrors(t *testing.T) {
	handler := func(context.Context, domain.AnalysisJob) (*domain.AnalysisResult, error) {
		return nil, errors.New("model crashed")
	}

	if reply := handleJob(context.Background(), []byte("not json"), handler); reply.Error == "" {
		t.Fatalf("expected decode error reply")
	}
	if reply := handleJob(context.Background(), []byte(`{"image_key":"a"}`), handler); reply.Error != "model crashed" {
		t.Fatalf("expected handler error reply, got %+v", reply)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(nats.ErrTimeout); !class.Retryable {
		t.Fatalf("expected timeout retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected cancellation ignored, got %+v", class)
	}
	if class := classifyNATSError(nats.ErrMaxPayload); class.Retryable || class.RecordFailure {
		t.Fatalf("expected oversized payload neither retried nor recorded, got %+v", class)
	}
}

func TestWrapPublishError(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{err: nats.ErrNoServers, kind: domain.ErrTemporary},
		{err: nats.ErrConnectionReconnecting, kind: domain.ErrTemporary},
		{err: nats.ErrConnectionClosed, kind: domain.ErrUnavailable},
		{err: nats.ErrMaxPayload, kind: domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		if err := wrapPublishError("nats publish", tc.err); !domain.IsKind(err, tc.kind) {
			t.Fatalf("wrapPublishError(%v) = %v, want kind %v", tc.err, err, tc.kind)
		}
	}
	if wrapPublishError("nats publish", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}
