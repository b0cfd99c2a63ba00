package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubTranslator struct {
	translated string
	err        error
}

func (s stubTranslator) Translate(ctx context.Context, text, sourceLang string) (string, string, error) {
	return s.translated, "provider", s.err
}

func (s stubTranslator) TranslateBack(ctx context.Context, text, targetLang string) (string, string, error) {
	return s.translated, "provider", s.err
}

func TestTranslateToEnglish_SkipsWhenAlreadyEnglish(t *testing.T) {
	res := TranslateToEnglish(context.Background(), stubTranslator{}, "hello", "en", zap.NewNop())
	if !res.IsOK() || res.Value != "hello" {
		t.Fatalf("expected pass-through Ok(hello), got %+v", res)
	}
}

func TestTranslateToEnglish_DegradesOnError(t *testing.T) {
	res := TranslateToEnglish(context.Background(), stubTranslator{err: errors.New("down")}, "bonjour", "fr", zap.NewNop())
	if !res.IsDegraded() || res.Value != "bonjour" {
		t.Fatalf("expected degraded original text, got %+v", res)
	}
}

func TestTranslateBack_SkipsWhenTargetEnglish(t *testing.T) {
	res := TranslateBack(context.Background(), stubTranslator{}, "answer", "en", zap.NewNop())
	if !res.IsOK() || res.Value != "answer" {
		t.Fatalf("expected pass-through Ok(answer), got %+v", res)
	}
}

func TestTranslateBack_DegradesOnError(t *testing.T) {
	res := TranslateBack(context.Background(), stubTranslator{err: errors.New("down")}, "answer", "ta", zap.NewNop())
	if !res.IsDegraded() || res.Value != "answer" {
		t.Fatalf("expected degraded English answer, got %+v", res)
	}
}
