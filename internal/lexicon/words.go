package lexicon

var defaultPositive = []string{
	"appreciated", "appreciate", "awesome", "balanced", "better", "brilliant", "calm",
	"clear", "collaborative", "comfortable", "confident", "empowered", "encouraged",
	"engaged", "enjoy", "enjoyed", "excellent", "excited", "fair", "flexible", "focused",
	"friendly", "good", "grateful", "great", "growth", "happy", "helpful", "inclusive",
	"inspired", "love", "motivated", "positive", "productive", "proud", "recognized",
	"respected", "rewarding", "satisfied", "smooth", "stable", "supported", "supportive",
	"thanks", "transparent", "trust", "valued", "welcome", "wonderful",
}

var defaultNegative = []string{
	"angry", "annoyed", "anxious", "awful", "bored", "broken", "burnout", "chaotic",
	"confused", "confusing", "disappointed", "disconnected", "exhausted", "frustrated",
	"frustrating", "hate", "hostile", "ignored", "isolated", "lack", "micromanaged",
	"micromanagement", "negative", "overloaded", "overwhelmed", "overworked", "poor",
	"pressure", "quit", "stress", "stressed", "stressful", "terrible", "tired",
	"toxic", "unclear", "underpaid", "unfair", "unhappy", "unheard", "unsupported",
	"upset", "worried", "worse", "worst",
}
