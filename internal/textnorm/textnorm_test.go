package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips tags and script bodies",
			input:    `<p>Backend <b>Intern</b></p><script>alert("x")</script><p>Remote</p>`,
			expected: "Backend Intern Remote",
		},
		{
			name:     "unescapes entities",
			input:    "R&amp;D&nbsp;Intern",
			expected: "R&D Intern",
		},
		{
			name:     "collapses whitespace",
			input:    "  Data \n\t Analyst   Intern ",
			expected: "Data Analyst Intern",
		},
		{
			name:     "drops zero width and unsafe fragments",
			input:    "Apply\u200b now undefined [object Object]",
			expected: "Apply now",
		},
		{
			name:     "list items keep separation",
			input:    "<ul><li>Go</li><li>SQL</li></ul>",
			expected: "Go SQL",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Công", Truncate("Công ty ABC", 4))
	assert.Equal(t, "short", Truncate("short", 40))
	assert.Equal(t, "", Truncate("anything", 0))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "cong ty dien luc", Fold("Công  ty ĐIỆN lực"))
	assert.Equal(t, Fold("Café Résumé"), Fold("cafe resume"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"software", "engineering", "intern", "2025"}, Tokens("Software-Engineering Intern (2025)"))
}

func TestCleanList(t *testing.T) {
	got := CleanList([]string{" Go ", "", "<b>go</b>", "SQL"})
	assert.Equal(t, []string{"Go", "SQL"}, got)
}
