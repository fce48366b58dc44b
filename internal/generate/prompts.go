// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package generate

import (
	"fmt"

	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

const editPreamble = `ROLE: analytics engineer maintaining a dbt project

TASK: Apply the requested change to the file below and return the complete
updated file.

CONSTRAINTS:
- Return ONLY the file content, with no commentary and no markdown fences
- Keep every unrelated line exactly as it is, including comments and ordering
- Do not invent models, sources or columns the request does not mention
`

var kindRules = map[types.Kind]string{
	types.KindSQL: `- The file is a dbt SQL model: keep Jinja ({{ ref() }}, {{ source() }},
  {% ... %}) intact and keep the final select as the model output
- Match the existing keyword case and indentation`,
	types.KindYAML: `- The file is a dbt YAML properties file: the result must be valid YAML
- Keep the version key and the models/sources structure; add column entries
  with a description when new columns are introduced`,
	types.KindMarkdown: `- The file is dbt documentation markdown: keep {% docs %} blocks balanced`,
	types.KindPython: `- The file is a dbt Python model: keep the model(dbt, session) entry point`,
	types.KindJSON: `- The result must be valid JSON`,
	types.KindCSV: `- The file is a dbt seed: keep the header row and the column count of each row`,
}

func editSystemPrompt(kind types.Kind) string {
	rules, ok := kindRules[kind]
	if !ok {
		return editPreamble
	}
	return editPreamble + rules + "\n"
}

func editUserPrompt(original, instruction string) string {
	return fmt.Sprintf("REQUEST:\n%s\n\nCURRENT FILE:\n<<<FILE\n%s\nFILE>>>", instruction, original)
}

const titleSystemPrompt = `ROLE: pull request assistant for a dbt project

TASK: Write a pull request title for the analyst request you are given.

CONSTRAINTS:
- One line, under 72 characters, no trailing period
- Imperative mood, for example "Add lifetime revenue to d_customers"
- Return ONLY the title, without quotes`

const translateSystemPrompt = `ROLE: dbt-savvy engineer

TASK: Map the business request onto the dbt model files it affects.

Return ONLY a JSON object with two fields:
- files: a list of dbt model file names or paths this affects
- prompt: a technical instruction describing exactly what to change in each file

Do NOT wrap the JSON in any markdown or text.`
