package gemini

import (
	"strings"

	"loan-intake/internal/llm"
)

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float32        `json:"temperature"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type uploadedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type uploadResponse struct {
	File uploadedFile `json:"file"`
}

// toGeminiSchema converts a JSON Schema document to the OpenAPI subset the
// API accepts: upper-case type names and no JSON-Schema-only keywords.
func toGeminiSchema(schema llm.ResponseSchema) map[string]any {
	if schema == nil {
		return nil
	}
	return convertSchema(map[string]any(schema))
}

func convertSchema(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch k {
		case "$schema", "$id", "additionalProperties", "title":
			continue
		case "type":
			if s, ok := v.(string); ok {
				out[k] = strings.ToUpper(s)
				continue
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				conv := make(map[string]any, len(props))
				for name, sub := range props {
					if m, ok := sub.(map[string]any); ok {
						conv[name] = convertSchema(m)
					}
				}
				out[k] = conv
				continue
			}
		case "required":
			if names, ok := v.([]string); ok {
				out["propertyOrdering"] = names
			}
		case "items":
			if m, ok := v.(map[string]any); ok {
				out[k] = convertSchema(m)
				continue
			}
		}
		out[k] = v
	}
	return out
}
