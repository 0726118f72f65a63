package generator

import "strings"

// Format is a config document representation.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatMarkdown
	FormatAgentRule
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatYAML, FormatMarkdown, FormatAgentRule}

// ParseFormat maps a query value to a Format. Anything unrecognized,
// including the empty string, is JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML
	case "markdown", "md":
		return FormatMarkdown
	case "agent_rule", "agent-rule", "rule":
		return FormatAgentRule
	default:
		return FormatJSON
	}
}

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "markdown"
	case FormatAgentRule:
		return "agent_rule"
	default:
		return "json"
	}
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatAgentRule:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension is the file suffix used when exporting f.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yaml"
	case FormatMarkdown:
		return ".md"
	case FormatAgentRule:
		return ".rules"
	default:
		return ".json"
	}
}
