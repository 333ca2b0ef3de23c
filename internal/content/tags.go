package content

import "strings"

const maxHashtags = 3

// Keyword pools per source. A tag is used when its keyword actually
// appears in the content, so tags stay on-topic.
var sourceKeywords = map[string][]string{
	"Quotes API":        {"inspiration", "motivation", "success", "life", "dreams", "goals", "wisdom", "quote"},
	"Joke API":          {"funny", "humor", "joke", "laugh", "comedy", "wit"},
	"Advice API":        {"advice", "tips", "help", "guidance", "wisdom", "life"},
	"Useless Facts API": {"fact", "interesting", "knowledge", "learn", "science", "amazing"},
	"Dog Facts API":     {"dog", "pet", "animal", "puppy", "canine"},
	"Random Word API":   {"word", "vocabulary", "language", "learning"},
	"Bored API":         {"activity", "fun", "entertainment", "hobby", "leisure"},
}

var genericKeywords = []string{"life", "love", "success", "happiness", "motivation", "inspiration"}

// Hashtags derives up to three tags (without the "#" prefix) by
// scanning the content for keywords associated with its source. Content
// with no keyword hits gets length-based filler so a post never goes
// out without tags.
func Hashtags(content, source string) []string {
	words, ok := sourceKeywords[source]
	if !ok {
		words = genericKeywords
	}
	lower := strings.ToLower(content)
	var tags []string
	for _, w := range words {
		if strings.Contains(lower, w) {
			tags = append(tags, w)
		}
	}
	if len(tags) == 0 {
		switch {
		case len(content) < 100:
			tags = []string{"short", "quick"}
		case len(content) > 200:
			tags = []string{"long", "detailed"}
		default:
			tags = []string{"content"}
		}
	}
	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}
	return tags
}
