package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultChatTemplate is the Mistral instruct format. Mistral has no system
// role, so the system text is prepended to the user turn.
const DefaultChatTemplate = `<s>[INST] {{ if .System }}{{ .System }}

{{ end }}{{ .User }} [/INST]`

// ChatTemplate renders system and user turns into a single model prompt
type ChatTemplate struct {
	tmpl *template.Template
}

type chatTurns struct {
	System string
	User   string
}

// NewChatTemplate parses a Go text/template. An empty source selects
// DefaultChatTemplate.
func NewChatTemplate(source string) (*ChatTemplate, error) {
	if strings.TrimSpace(source) == "" {
		source = DefaultChatTemplate
	}
	tmpl, err := template.New("chat").Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse chat template: %w", err)
	}
	return &ChatTemplate{tmpl: tmpl}, nil
}

// Render applies the template
func (c *ChatTemplate) Render(system, user string) (string, error) {
	if c == nil || c.tmpl == nil {
		return "", fmt.Errorf("no chat template")
	}
	var b strings.Builder
	if err := c.tmpl.Execute(&b, chatTurns{System: system, User: user}); err != nil {
		return "", fmt.Errorf("render chat template: %w", err)
	}
	return b.String(), nil
}

// ConcatPrompt is the untemplated fallback prompt
func ConcatPrompt(system, user string) string {
	return system + "\n\n" + user
}
