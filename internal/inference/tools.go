package inference

import "google.golang.org/genai"

// Tool names the model may call. The reconciler dispatches on these.
const (
	ToolSaveWord     = "save_word_to_notion"
	ToolSaveSentence = "save_sentence_to_notion"
)

// toolDeclarations describes the vocabulary and sentence save tools.
// Declarations only; execution happens downstream so the caller decides
// whether and where a save lands.
func toolDeclarations() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        ToolSaveWord,
					Description: "Save a vocabulary word the user wants to remember to their Notion word database.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"word": {
								Type:        genai.TypeString,
								Description: "The word or expression to save, in its dictionary form.",
							},
							"meaning": {
								Type:        genai.TypeString,
								Description: "A concise Korean explanation of the word's meaning.",
							},
							"example": {
								Type:        genai.TypeString,
								Description: "A natural example sentence using the word.",
							},
						},
						Required: []string{"word", "meaning", "example"},
					},
				},
				{
					Name:        ToolSaveSentence,
					Description: "Save a sentence the user wants to study to their Notion sentence database.",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"sentence": {
								Type:        genai.TypeString,
								Description: "The sentence to save, exactly as it should be studied.",
							},
							"meaning": {
								Type:        genai.TypeString,
								Description: "A concise Korean explanation of the sentence's meaning.",
							},
							"key_phrases": {
								Type:        genai.TypeString,
								Description: "Comma separated key phrases or grammar points in the sentence.",
							},
						},
						Required: []string{"sentence", "meaning", "key_phrases"},
					},
				},
			},
		},
	}
}
