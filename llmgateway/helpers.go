package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/healthline/service/llm"
	"github.com/healthline/service/types"
)

// supportedLanguages is the fixed detection vocabulary from spec.md
// §4.6 — the same six codes the original pipeline's
// detect_language_only recognized (English plus five Indic
// languages, including their common romanized/Tanglish-style forms).
var supportedLanguages = map[string]bool{"en": true, "hi": true, "ta": true, "te": true, "kn": true, "ml": true}

type languageDetectionResult struct {
	DetectedLanguage string `json:"detected_language"`
}

// =============================================================================
// 🛠️ 专用辅助方法
// =============================================================================

func chatRequest(traceID string, messages []types.Message) *llm.ChatRequest {
	return &llm.ChatRequest{
		TraceID:     traceID,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

func firstChoiceText(resp *llm.ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm response had no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// DetectLanguage asks the primary/fallback pair to classify text into
// one of the six codes spec.md §4.6 recognizes (en, hi, ta, te, kn,
// ml), including the romanized/Tanglish-style forms those languages
// are often typed in. The model is required to answer with a single
// JSON object; any code outside the supported set, or any response
// that doesn't parse as that JSON shape, degrades to "en" rather than
// failing the turn.
func (g *Gateway) DetectLanguage(ctx context.Context, text string) (string, string, error) {
	req := chatRequest(uuid.NewString(), []types.Message{
		types.NewSystemMessage("You are a language detection expert. Respond ONLY with valid JSON containing the detected language code."),
		types.NewUserMessage(detectionPrompt(text)),
	})

	resp, provider, err := g.Complete(ctx, req)
	if err != nil {
		return "en", "", err
	}

	raw, err := firstChoiceText(resp)
	if err != nil {
		return "en", provider, err
	}

	code, ok := parseDetectedLanguage(raw)
	if !ok {
		return "en", provider, nil
	}
	return code, provider, nil
}

func detectionPrompt(text string) string {
	return "Detect the language of the following text and respond with ONLY a valid JSON object.\n\n" +
		"Valid language codes: \"en\" (English), \"hi\" (Hindi), \"ta\" (Tamil), \"te\" (Telugu), \"kn\" (Kannada), \"ml\" (Malayalam)\n\n" +
		"The text may be written in English script (romanized). For example, Tamil, Hindi, Telugu, Kannada, and Malayalam are " +
		"frequently typed using English letters. Detect the INTENDED language based on the words and phrases, even if written in English script.\n\n" +
		"Text to analyze:\n" + text + "\n\n" +
		"Respond with ONLY this JSON format:\n{\"detected_language\": \"en\"}\n\nDo NOT translate. Only detect the language code."
}

// parseDetectedLanguage extracts a detected_language code from a
// model response, tolerating a fenced ```json code block around the
// JSON object the way the original pipeline's responses sometimes
// arrived wrapped.
func parseDetectedLanguage(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		parts := strings.SplitN(raw, "```", 3)
		if len(parts) >= 2 {
			raw = strings.TrimPrefix(strings.TrimSpace(parts[1]), "json")
			raw = strings.TrimSpace(raw)
		}
	}

	var result languageDetectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", false
	}

	code := strings.ToLower(strings.TrimSpace(result.DetectedLanguage))
	if !supportedLanguages[code] {
		return "", false
	}
	return code, true
}

// languageNames maps the supported codes to the display name the
// translation prompts use, matching the original pipeline's
// lang_names table.
var languageNames = map[string]string{
	"hi": "Hindi",
	"ta": "Tamil",
	"te": "Telugu",
	"kn": "Kannada",
	"ml": "Malayalam",
}

// Translate translates text from sourceLang into English.
func (g *Gateway) Translate(ctx context.Context, text, sourceLang string) (string, string, error) {
	if sourceLang == "en" {
		return text, "", nil
	}
	langName := languageNames[sourceLang]
	if langName == "" {
		langName = "Unknown"
	}

	req := chatRequest(uuid.NewString(), []types.Message{
		types.NewSystemMessage(fmt.Sprintf("You are a professional translator. Translate %s to English accurately.", langName)),
		types.NewUserMessage(fmt.Sprintf("Translate the following %s text to English. Translate accurately while maintaining the meaning.\n\n%s text:\n%s\n\nRespond with ONLY the English translation, nothing else.", langName, langName, text)),
	})

	resp, provider, err := g.Complete(ctx, req)
	if err != nil {
		return "", provider, err
	}

	translated, err := firstChoiceText(resp)
	return translated, provider, err
}

// TranslateBack translates an English answer into targetLang, always
// in the language's native script — spec.md's translate_back step
// never romanizes, matching the original's translate_to_user_language.
func (g *Gateway) TranslateBack(ctx context.Context, text, targetLang string) (string, string, error) {
	if targetLang == "en" {
		return text, "", nil
	}
	langName := languageNames[targetLang]
	if langName == "" {
		langName = "English"
	}

	req := chatRequest(uuid.NewString(), []types.Message{
		types.NewSystemMessage(fmt.Sprintf("You are a professional medical translator. Translate accurately to %s in NATIVE SCRIPT (NOT romanized/English script).", langName)),
		types.NewUserMessage(fmt.Sprintf("Translate the following English text to %s. Preserve medical detail and tone precisely. Respond with ONLY the translation in native script, nothing else.\n\nEnglish text:\n%s", langName, text)),
	})

	resp, provider, err := g.Complete(ctx, req)
	if err != nil {
		return "", provider, err
	}

	translated, err := firstChoiceText(resp)
	return translated, provider, err
}

// maxHistoryMessages caps the conversation history included in the
// grounded-answer prompt, matching pipeline_functions.py's
// conversation_history[-10:] truncation.
const maxHistoryMessages = 10

// recentHistory returns at most the last maxHistoryMessages entries of
// history, oldest-first, same windowing as the original's slice.
func recentHistory(history []types.Message) []types.Message {
	if len(history) <= maxHistoryMessages {
		return history
	}
	return history[len(history)-maxHistoryMessages:]
}

// GenerateAnswer produces the final English-language answer, grounded
// in the retrieved chunks and graph facts supplied by the caller.
func (g *Gateway) GenerateAnswer(ctx context.Context, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact) (string, []types.Citation, string, error) {
	history = recentHistory(history)
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.NewSystemMessage(systemPrompt()))
	messages = append(messages, history...)
	messages = append(messages, types.NewUserMessage(buildGroundedPrompt(question, chunks, facts)))

	req := chatRequest(uuid.NewString(), messages)
	resp, provider, err := g.Complete(ctx, req)
	if err != nil {
		return "", nil, provider, err
	}

	answer, err := firstChoiceText(resp)
	if err != nil {
		return "", nil, provider, err
	}

	citations := make([]types.Citation, 0, len(chunks))
	for _, c := range chunks {
		citations = append(citations, types.Citation{ChunkID: c.ID, Source: c.Source, Topic: c.Topic})
	}

	return answer, citations, provider, nil
}

// GenerateAnswerStream is the streaming counterpart of GenerateAnswer,
// used by the orchestrator's SSE path.
func (g *Gateway) GenerateAnswerStream(ctx context.Context, question string, history []types.Message, chunks []types.RetrievedChunk, facts []types.Fact) (<-chan llm.StreamChunk, string, error) {
	history = recentHistory(history)
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, types.NewSystemMessage(systemPrompt()))
	messages = append(messages, history...)
	messages = append(messages, types.NewUserMessage(buildGroundedPrompt(question, chunks, facts)))

	req := chatRequest(uuid.NewString(), messages)
	return g.Stream(ctx, req)
}

func systemPrompt() string {
	return "You are a cautious health-information assistant. You are not a doctor and must not diagnose. " +
		"Ground every claim in the provided facts and context chunks when present, and say so when information is insufficient. " +
		"Always recommend professional care for anything serious."
}

func buildGroundedPrompt(question string, chunks []types.RetrievedChunk, facts []types.Fact) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)

	if len(facts) > 0 {
		b.WriteString("\n\nKnown facts:\n")
		for _, f := range facts {
			b.WriteString("- [" + f.Kind + "] " + f.Statement + "\n")
		}
	}

	if len(chunks) > 0 {
		b.WriteString("\nRelevant context:\n")
		for _, c := range chunks {
			b.WriteString("- (" + c.ID + ") " + c.Chunk + "\n")
		}
	}

	return b.String()
}
