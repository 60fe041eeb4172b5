package safety

import "strings"

// NoAnswerClassifier flags generated answers that decline to answer. Phrase
// matching over model output is inherently heuristic; the classifier sits
// behind the AnswerClassifier port so an embeddings-based detector can replace
// it without touching orchestration.
type NoAnswerClassifier struct {
	phrases      []string
	refusalWords []string
}

var defaultNoAnswerPhrases = []string{
	"i don't have enough information",
	"i don't currently have the necessary details",
	"there isn't enough reliable information",
	"i'm unable to find a clear answer",
	"i cannot find information",
	"no information is available",
	"insufficient information",
	"not enough information",
	"i don't know",
	"i'm not sure",
	"i cannot determine",
	"unable to provide",
	"not available at this time",
}

// Words that, in a very short reply, indicate a refusal even without a full
// phrase match.
var defaultRefusalWords = []string{"don't", "can't", "cannot", "unable", "insufficient"}

const shortResponseLimit = 100

func NewNoAnswerClassifier() *NoAnswerClassifier {
	return &NoAnswerClassifier{
		phrases:      defaultNoAnswerPhrases,
		refusalWords: defaultRefusalWords,
	}
}

func (c *NoAnswerClassifier) IsNoAnswer(answer string) bool {
	lowered := strings.ToLower(strings.TrimSpace(answer))
	for _, phrase := range c.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	if len(lowered) < shortResponseLimit {
		for _, word := range c.refusalWords {
			if strings.Contains(lowered, word) {
				return true
			}
		}
	}
	return false
}
