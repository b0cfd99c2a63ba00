package safety

// =============================================================================
// 📖 安全词库
// =============================================================================

// redFlagPhrases are symptom descriptions that, on their own, warrant
// an immediate "seek emergency care" message regardless of what else
// the pipeline produces.
var redFlagPhrases = []string{
	"chest pain", "crushing chest pain", "chest pressure",
	"can't breathe", "cannot breathe", "difficulty breathing", "shortness of breath",
	"sudden severe headache", "worst headache of my life",
	"slurred speech", "face drooping", "one side of my body is numb", "sudden numbness",
	"coughing up blood", "vomiting blood",
	"severe bleeding", "won't stop bleeding",
	"loss of consciousness", "passed out", "unresponsive",
	"suicidal", "suicide",
	"seizure", "convulsions",
	"blue lips", "turning blue",
}

// crisisPhrases are mental-health crisis phrases that trigger a
// crisis-line referral message.
var crisisPhrases = []string{
	"want to kill myself", "want to die", "end my life", "ending it all",
	"suicidal thoughts", "thinking about suicide", "plan to kill myself",
	"self harm", "hurting myself", "cutting myself",
	"no reason to live", "better off dead",
}

// pregnancyEmergencyPhrases are pregnancy-specific emergency phrases.
var pregnancyEmergencyPhrases = []string{
	"vaginal bleeding pregnant", "bleeding during pregnancy",
	"severe abdominal pain pregnant", "water broke", "contractions too early",
	"baby not moving", "decreased fetal movement",
	"severe headache pregnant", "blurred vision pregnant", "swelling face pregnant",
	"seizure pregnant",
}
