package prompt

import (
	"fmt"
	"strings"
)

// buildWorkflowPrompt produces the multi-step instruction sent to either
// provider: plan the edit against the image, validate the plan, then emit a
// final high-fidelity prompt. Both providers share it so switching
// providers never changes enhancement behavior.
func buildWorkflowPrompt(userPrompt string) string {
	sb := &strings.Builder{}
	sb.WriteString(`You are a multi-role AI assistant that will perform a complete image editing workflow analysis in sequential steps. You must complete ALL steps in order and provide your final output.

## STEP 1: WORKFLOW PLANNING
You are a highly analytical visual expert. Analyze the image and the user's request, then create a structured JSON plan for a high-fidelity edit:
1. Identify the 'Complete Subject' for preservation. The provided image is your only source of truth for geometry and spatial relationships. Describe its component parts, their proportions, and how they connect.
2. Define the background modification the user's request implies.
3. Define any fine-detail modifications on the subject itself.
4. Emit the plan as a single JSON object: {"subject_to_preserve": {"component_parts": [...], "description": "..."}, "background_edit_instruction": "...", "detail_edit_instructions": [...]}

## STEP 2: PLAN VALIDATION
Switch roles to a quality assurance expert. Compare the subject description against the image and answer YES or NO: does it accurately match the main subject?

## STEP 3: PROMPT ARCHITECTURE
If validation passed, construct a high-fidelity prompt: first line "High-fidelity photographic edit of the provided image.", then "Subject to Preserve: " with the component parts, then "Edits to perform:" followed by a numbered list of the background and detail instructions.
If validation failed, ignore the subject description and construct a fallback prompt translating only the user's original request into numbered actions.

`)
	fmt.Fprintf(sb, "**User's Original Request:** %q\n\n", userPrompt)
	sb.WriteString(`## FINAL OUTPUT FORMAT
Structure your response exactly as:

### STEP 1 - JSON PLAN:
[plan]

### STEP 2 - VALIDATION:
[YES or NO]

### STEP 3 - FINAL PROMPT:
[final prompt, plain text only, no markdown]`)
	return sb.String()
}

// extractFinalPrompt pulls the plain-text prompt out of the model's
// three-step response, skipping markdown fences and headers. Returns ""
// when no final-prompt section can be found.
func extractFinalPrompt(response string) string {
	lines := strings.Split(response, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "FINAL PROMPT:") {
			continue
		}
		var collected []string
		inFence := false
		for _, raw := range lines[i+1:] {
			current := strings.TrimSpace(raw)
			if current == "```" {
				inFence = !inFence
				continue
			}
			if current == "" || strings.HasPrefix(current, "#") || strings.HasPrefix(current, "```") {
				continue
			}
			collected = append(collected, current)
		}
		if len(collected) > 0 {
			return strings.Join(collected, "\n")
		}
	}
	return ""
}
