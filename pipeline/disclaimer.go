package pipeline

// =============================================================================
// ⚠️ 免责声明
// =============================================================================

// disclaimers maps a target language code to the standard
// not-a-substitute-for-professional-care notice appended to every
// non-red-flag answer, in that language's native script.
var disclaimers = map[string]string{
	"en": "\n\nThis is general information, not a medical diagnosis. Please consult a healthcare professional for advice specific to you.",
	"hi": "\n\nयह सामान्य जानकारी है, चिकित्सीय निदान नहीं। कृपया अपनी स्थिति के लिए किसी स्वास्थ्य विशेषज्ञ से सलाह लें।",
	"ta": "\n\nஇது பொதுவான தகவல், மருத்துவ நோயறிதல் அல்ல. உங்கள் நிலைக்கு ஏற்ற ஆலோசனைக்கு சுகாதார நிபுணரை அணுகவும்.",
	"te": "\n\nఇది సాధారణ సమాచారం, వైద్య నిర్ధారణ కాదు. దయచేసి మీ పరిస్థితికి తగిన సలహా కోసం ఆరోగ్య నిపుణుడిని సంప్రదించండి.",
	"kn": "\n\nಇದು ಸಾಮಾನ್ಯ ಮಾಹಿತಿ, ವೈದ್ಯಕೀಯ ರೋಗನಿರ್ಣಯವಲ್ಲ. ದಯವಿಟ್ಟು ನಿಮಗೆ ಸೂಕ್ತವಾದ ಸಲಹೆಗಾಗಿ ಆರೋಗ್ಯ ತಜ್ಞರನ್ನು ಸಂಪರ್ಕಿಸಿ.",
	"ml": "\n\nഇത് പൊതുവായ വിവരമാണ്, വൈദ്യ രോഗനിർണയമല്ല. നിങ്ങൾക്ക് അനുയോജ്യമായ ഉപദേശത്തിന് ആരോഗ്യ വിദഗ്ധനെ സമീപിക്കുക.",
}

// LocalizedDisclaimer returns the standard disclaimer in targetLang,
// falling back to English for any language not in the supported set.
func LocalizedDisclaimer(targetLang string) string {
	if d, ok := disclaimers[targetLang]; ok {
		return d
	}
	return disclaimers["en"]
}
