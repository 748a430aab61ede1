package knowledgebase

import (
	"context"

	"github.com/effective-security/toolagent/tools"
)

// ToolName is the name of the knowledge base tool
const ToolName = "ai_knowledge_base"

// Description is given to the model
const Description = "Provides information about AI concepts and technologies. Use this when you need information about AI frameworks, techniques, or terminology."

// Request is the tool input
type Request struct {
	Query string `json:"query" jsonschema:"description=The question about AI concepts or technologies"`
}

// NewTool returns the ai_knowledge_base tool
func NewTool(kb *KnowledgeBase) tools.Tool[Request] {
	return tools.MustFunc(ToolName, Description, func(ctx context.Context, req *Request) (string, error) {
		return kb.Answer(ctx, req.Query)
	})
}
