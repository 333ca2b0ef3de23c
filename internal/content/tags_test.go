package content

import (
	"reflect"
	"strings"
	"testing"
)

func TestHashtags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		source  string
		want    []string
	}{
		{
			name:    "quote keywords in list order",
			content: "Success in life comes from motivation.",
			source:  "Quotes API",
			want:    []string{"motivation", "success", "life"},
		},
		{
			name:    "caps at three",
			content: "A wisdom quote about inspiration, motivation and success in life.",
			source:  "Quotes API",
			want:    []string{"inspiration", "motivation", "success"},
		},
		{
			name:    "dog facts",
			content: "A puppy is a young dog.",
			source:  "Dog Facts API",
			want:    []string{"dog", "puppy"},
		},
		{
			name:    "case insensitive",
			content: "LAUGH until it hurts.",
			source:  "Joke API",
			want:    []string{"laugh"},
		},
		{
			name:    "generic keywords for unknown source",
			content: "Happiness and love.",
			source:  "Somewhere Else",
			want:    []string{"love", "happiness"},
		},
		{
			name:    "short filler",
			content: "Tiny.",
			source:  "Joke API",
			want:    []string{"short", "quick"},
		},
		{
			name:    "long filler",
			content: strings.Repeat("x", 201),
			source:  "Random Word API",
			want:    []string{"long", "detailed"},
		},
		{
			name:    "medium filler",
			content: strings.Repeat("y", 150),
			source:  "Bored API",
			want:    []string{"content"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Hashtags(tt.content, tt.source)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Hashtags(%q, %q) = %v, want %v", tt.content, tt.source, got, tt.want)
			}
		})
	}
}

func TestHashtagsNeverEmptyOrPrefixed(t *testing.T) {
	t.Parallel()
	for _, src := range DefaultSources() {
		got := Hashtags("completely unrelated words here", src.Name)
		if len(got) == 0 || len(got) > 3 {
			t.Fatalf("source %s: %d tags, want 1..3", src.Name, len(got))
		}
		for _, tag := range got {
			if strings.HasPrefix(tag, "#") {
				t.Fatalf("source %s: tag %q carries a # prefix", src.Name, tag)
			}
		}
	}
}
