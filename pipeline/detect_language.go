package pipeline

import (
	"context"

	"go.uber.org/zap"
)

// LanguageDetector is the subset of llmgateway.Gateway this stage needs.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, string, error)
}

// DetectedLanguage is the output of the detect_language stage.
type DetectedLanguage struct {
	Code     string
	Provider string
}

// DetectLanguage identifies the language of the user's message. On
// failure it degrades to "en" rather than failing the turn, since
// every downstream stage can still run against English text.
func DetectLanguage(ctx context.Context, det LanguageDetector, text string, logger *zap.Logger) Result[DetectedLanguage] {
	code, provider, err := det.DetectLanguage(ctx, text)
	if err != nil {
		logger.Warn("language detection failed, defaulting to en", zap.Error(err))
		return Degraded(DetectedLanguage{Code: "en"}, "language_detection_failed: "+err.Error())
	}

	return Ok(DetectedLanguage{Code: code, Provider: provider})
}
