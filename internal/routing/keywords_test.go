package routing

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{
			name:    "stopwords and short words dropped",
			message: "How do I fix the database connection?",
			want:    []string{"fix", "database", "connection"},
		},
		{
			name:    "punctuation stripped and lowercased",
			message: "Fix GitHub's API, please!",
			want:    []string{"fix", "github", "api"},
		},
		{
			name:    "duplicates collapse",
			message: "deploy deploy deploy now",
			want:    []string{"deploy", "now"},
		},
		{
			name:    "empty message",
			message: "   ",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKeywords(tt.message); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"How to configure the watcher?", IntentHowTo},
		{"What is the debounce window?", IntentExplanation},
		{"implement a new parser", IntentCreation},
		{"the reload is broken again", IntentTroubleshooting},
		{"verify the schema migration", IntentValidation},
		{"update the readme", IntentDocumentation},
		{"morning status sync", IntentGeneral},
	}

	for _, tt := range tests {
		if got := ClassifyIntent(tt.message); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
