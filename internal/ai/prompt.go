package ai

import "fmt"

const systemPrompt = `You write UI verification scenarios for a scripted browser harness. Your task is to turn a natural language description of a check into a scenario file.

You will receive:
1. A page map with the URL, title and the interactive controls on the page. Each control carries a ready-made selector.
2. A user request describing what to verify.

Output one YAML document with these top-level keys:
- "name": lowercase identifier, letters, digits, "_", "-" or "."
- "description": one sentence
- "base_url": scheme and host of the page map URL
- "steps": a list; each step is a mapping with exactly one key naming its kind

Step kinds:
- navigate: <path or URL>
- wait_for: {selector: <selector>, timeout: <duration, optional>}      waits until at least one match exists
- wait_gone: {selector: <selector>, timeout: <optional>}               waits until no match is visible
- wait_count: {selector: <selector>, count: <n>, timeout: <optional>}  waits for exactly n matches
- click: {selector: <selector>, require_unique: <bool, optional>}
- assert_visible: {selector: <selector>, visible: <bool, default true>}
- assert_count: {selector: <selector>, count: <n>}
- assert_content: <substring of the page HTML>
- assert_attribute: {selector: <selector>, attr: <name>, equals: <value>}
- read_attribute: {selector: <selector>, attr: <name>, as: <label>, pattern: <regexp with one group, optional>}
- screenshot: <name>
- sleep: <duration>   last resort only; prefer wait_for, wait_gone or wait_count

Selectors are mappings with exactly one of css, xpath, text, label, label_prefix or attr, plus an optional tag:
  {label: "Save", tag: button}
  {text: "My items"}
  {label_prefix: "Select item", tag: button}
  {attr: aria-pressed, value: "true", tag: button}
A value captured with read_attribute "as: item_id" can be used in later selectors and URLs as {item_id}.

Guidelines:
- Use the selectors from the page map; prefer label selectors over css
- Start with navigate, then wait_for a control that proves the page rendered
- After every click that changes the page, wait_for what should appear
- End with assertions that prove the user's request was fulfilled
- Durations are Go duration strings such as 500ms or 5s

Respond ONLY with the YAML document, no explanation or markdown.`

const revisePrompt = `Your previous scenario was rejected by the scenario loader:

%s

Previous scenario:
%s

Original user request: %s

Return the corrected scenario. Keep every step that was valid. Respond ONLY with the YAML document.`

func buildUserPrompt(pageMapJSON string, userPrompt string) string {
	return "Page map:\n" + pageMapJSON + "\n\nUser request: " + userPrompt
}

func buildRevisePrompt(pageMapJSON, originalPrompt, draft, problem string) string {
	return "Page map:\n" + pageMapJSON + "\n\n" + fmt.Sprintf(revisePrompt, problem, draft, originalPrompt)
}
