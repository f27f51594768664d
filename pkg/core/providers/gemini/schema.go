package gemini

import (
	"google.golang.org/genai"

	"github.com/vango-go/nava/pkg/core/types"
)

func stringSchema(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func stringArraySchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

var suggestionsSchema = stringArraySchema()

var verifySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"success":  {Type: genai.TypeBoolean},
		"feedback": {Type: genai.TypeString},
	},
	Required: []string{"success", "feedback"},
}

var planSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       stringSchema(""),
		"description": stringSchema(""),
		"analysis":    stringSchema("Simple explanation of what we will do"),
		"feasibility": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"status": {
					Type: genai.TypeString,
					Enum: []string{
						string(types.FeasibilityYes),
						string(types.FeasibilityPartially),
						string(types.FeasibilityNotSafe),
						string(types.FeasibilityNo),
					},
				},
				"explanation": stringSchema(""),
			},
			Required: []string{"status", "explanation"},
		},
		"changes": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"add":    stringArraySchema(),
				"remove": stringArraySchema(),
				"modify": stringArraySchema(),
			},
			Required: []string{"add", "remove", "modify"},
		},
		"steps": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":                stringSchema(""),
					"description":          stringSchema("Step instruction in simple English"),
					"verificationCriteria": stringSchema("Visual check like 'It should look like...'"),
				},
				Required: []string{"title", "description", "verificationCriteria"},
			},
		},
		"safetyWarning": stringArraySchema(),
		"alternatives":  stringArraySchema(),
		"estimatedTime": stringSchema(""),
		"difficulty": {
			Type: genai.TypeString,
			Enum: []string{
				string(types.DifficultyEasy),
				string(types.DifficultyMedium),
				string(types.DifficultyHard),
			},
		},
	},
	Required: []string{"title", "description", "analysis", "feasibility", "changes", "steps", "safetyWarning", "estimatedTime", "difficulty"},
}
