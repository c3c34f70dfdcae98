package analysis

// Suggestion is a calming activity recommended for a stress band. Activity
// is the machine-readable key a client uses to start the activity; Action
// and Description are the human-readable call to action.
type Suggestion struct {
	Title       string `json:"title"`
	Activity    string `json:"activity"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// suggestionBands maps ascending stress thresholds to suggestions. Suggest
// picks the first band whose upper bound exceeds the score.
var suggestionBands = []struct {
	below float64
	s     Suggestion
}{
	{25, Suggestion{
		Title:       "Calm",
		Activity:    "play_lofi",
		Action:      "Put on some lo-fi beats",
		Description: "You sound relaxed. Mellow background music can help you hold on to that calm.",
	}},
	{50, Suggestion{
		Title:       "Slightly Tense",
		Activity:    "breathing",
		Action:      "Try a short breathing exercise",
		Description: "There is a little tension in your voice. A minute of slow, deep breaths can settle it.",
	}},
	{75, Suggestion{
		Title:       "Stressed",
		Activity:    "body_scan",
		Action:      "Do a guided body scan",
		Description: "Your voice carries clear signs of stress. A body scan meditation helps release built-up tension.",
	}},
	{101, Suggestion{
		Title:       "Overwhelmed",
		Activity:    "nature_sounds",
		Action:      "Step away with calming nature sounds",
		Description: "You sound overwhelmed right now. Take a few minutes somewhere quiet with soothing nature sounds.",
	}},
}

// Suggest returns the activity suggestion for a combined stress score in
// [0,100]. The suggestion's Title doubles as the report's friendly label.
func Suggest(stress float64) Suggestion {
	for _, band := range suggestionBands {
		if stress < band.below {
			return band.s
		}
	}
	return suggestionBands[len(suggestionBands)-1].s
}

// SuggestForActivity returns the suggestion whose Activity key matches, or
// false when the key is unknown.
func SuggestForActivity(activity string) (Suggestion, bool) {
	for _, band := range suggestionBands {
		if band.s.Activity == activity {
			return band.s, true
		}
	}
	return Suggestion{}, false
}
