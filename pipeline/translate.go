package pipeline

import (
	"context"

	"go.uber.org/zap"
)

// Translator is the subset of llmgateway.Gateway the translation stages need.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, string, error)
	TranslateBack(ctx context.Context, text, targetLang string) (string, string, error)
}

// TranslateToEnglish turns the user's message into English for the
// rest of the pipeline to operate on. A non-English source that fails
// to translate degrades to the original text, since the safety
// scanner's English-only lexicon (and every downstream backend) needs
// something to work with.
func TranslateToEnglish(ctx context.Context, tr Translator, text, sourceLang string, logger *zap.Logger) Result[string] {
	if sourceLang == "en" || sourceLang == "" {
		return Ok(text)
	}

	translated, _, err := tr.Translate(ctx, text, sourceLang)
	if err != nil {
		logger.Warn("translate_to_english failed, using original text", zap.Error(err), zap.String("source_lang", sourceLang))
		return Degraded(text, "translation_failed: "+err.Error())
	}

	return Ok(translated)
}

// TranslateBack renders the English answer into the target language.
// On failure it degrades to the English answer itself rather than
// failing the turn outright — an English answer to a non-English
// question is still useful information.
func TranslateBack(ctx context.Context, tr Translator, answer, targetLang string, logger *zap.Logger) Result[string] {
	if targetLang == "en" || targetLang == "" {
		return Ok(answer)
	}

	translated, _, err := tr.TranslateBack(ctx, answer, targetLang)
	if err != nil {
		logger.Warn("translate_back failed, returning English answer", zap.Error(err), zap.String("target_lang", targetLang))
		return Degraded(answer, "translation_failed: "+err.Error())
	}

	return Ok(translated)
}
