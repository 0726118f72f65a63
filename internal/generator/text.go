package generator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/chaseai/chaseai/internal/model"
)

func renderMarkdown(doc Document, cfg *model.NetworkConfig) string {
	var b strings.Builder

	b.WriteString("# ChaseAI Agent Integration Manifest\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", doc.Timestamp)

	b.WriteString("## Application\n\n")
	fmt.Fprintf(&b, "- **Name**: %s\n", doc.Application.Name)
	fmt.Fprintf(&b, "- **Version**: %s\n", doc.Application.Version)
	fmt.Fprintf(&b, "- **Description**: %s\n\n", doc.Application.Description)

	b.WriteString("## Available Ports\n\n")
	if len(doc.Ports) == 0 {
		b.WriteString("No ports are enabled.\n\n")
	}
	for _, p := range doc.Ports {
		fmt.Fprintf(&b, "### Port %d\n\n", p.Port)
		fmt.Fprintf(&b, "- **URL**: %s\n", p.URL)
		fmt.Fprintf(&b, "- **Interface**: %s\n", p.Interface.IPAddress)
		fmt.Fprintf(&b, "- **Role**: %s\n", p.Role)
		fmt.Fprintf(&b, "- **Enabled**: %t\n\n", p.Enabled)
		b.WriteString("**Endpoints**:\n\n")
		for _, ep := range p.Endpoints {
			fmt.Fprintf(&b, "- `%s %s` - %s\n", ep.Method, ep.Path, ep.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Verification\n\n")
	b.WriteString(verificationInstructions(cfg))
	b.WriteString("\n")

	b.WriteString("## API Endpoints\n\n")
	paths := make([]string, 0, len(doc.Endpoints))
	for p := range doc.Endpoints {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		ep := doc.Endpoints[path]
		fmt.Fprintf(&b, "### `%s %s`\n\n%s\n\n", ep.Method, path, ep.Description)
		if ep.Request != nil {
			b.WriteString("**Request**:\n\n")
			writeJSONBlock(&b, ep.Request)
		}
		if ep.Response != nil {
			b.WriteString("**Response**:\n\n")
			writeJSONBlock(&b, ep.Response)
		}
	}

	b.WriteString("## Integration Guide\n\n")
	fmt.Fprintf(&b, "For detailed integration instructions, see the [AI Integration Guide](%s).\n", doc.Documentation["getting_started"])
	return b.String()
}

func renderAgentRule(doc Document, cfg *model.NetworkConfig) string {
	var b strings.Builder

	b.WriteString("# ChaseAI Verification Protocol\n\n")
	b.WriteString("You operate under ChaseAI control. Follow these rules for every task.\n\n")

	b.WriteString("## Instructions\n\n")
	instruction := false
	for _, p := range doc.Ports {
		if p.Role == string(model.RoleInstruction) {
			fmt.Fprintf(&b, "- Before starting, fetch your operating context: GET %s/context\n", p.URL)
			instruction = true
		}
	}
	if !instruction {
		b.WriteString("- No instruction port is enabled; follow the user's direct instructions.\n")
	}
	b.WriteString("- Only perform actions listed in allowed_actions.\n\n")

	b.WriteString("## Verification\n\n")
	b.WriteString("- When verification_required is true, or an action is destructive, request approval first.\n")
	b.WriteString(verificationInstructions(cfg))
	b.WriteString("- Proceed only when status is \"approved\" or \"approved_session\". Stop on \"rejected\" or \"cancelled\".\n")
	return b.String()
}

// verificationInstructions explains how to reach the verification flow
// for the configured mode.
func verificationInstructions(cfg *model.NetworkConfig) string {
	if cfg != nil && cfg.VerificationMode == model.VerificationCLI {
		return "- Run `chase --verification --action <action> --reason <reason>` and wait for the decision.\n"
	}
	if cfg != nil {
		if b, ok := cfg.FirstEnabled(model.RoleVerification); ok {
			return fmt.Sprintf("- POST http://%s/verify with {\"action\", \"reason\", \"context\"} and wait for the decision.\n", b.Addr())
		}
	}
	return "- No verification port is enabled; ask the user directly before sensitive actions.\n"
}

func writeJSONBlock(b *strings.Builder, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	b.WriteString("```json\n")
	b.Write(out)
	b.WriteString("\n```\n\n")
}
