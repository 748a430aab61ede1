package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

const (
	partTypeText         = "text"
	partTypeToolCall     = "tool_call"
	partTypeToolResponse = "tool_response"
)

// messageJSON is the stored form of a Message.
// A message with a single text part is stored as {"role","text"}.
type messageJSON struct {
	Role  Role              `json:"role"`
	Text  string            `json:"text,omitempty"`
	Parts []json.RawMessage `json:"parts,omitempty"`
}

type partJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(messageJSON{Role: m.Role, Text: tp.Text})
		}
	}

	res := messageJSON{
		Role:  m.Role,
		Parts: make([]json.RawMessage, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		var pj partJSON
		switch pp := p.(type) {
		case TextContent:
			pj = partJSON{Type: partTypeText, Text: pp.Text}
		case ToolCall:
			pj = partJSON{Type: partTypeToolCall, ToolCall: &pp}
		case ToolCallResponse:
			pj = partJSON{Type: partTypeToolResponse, ToolResponse: &pp}
		default:
			return nil, errors.Newf("unsupported content part: %T", p)
		}
		js, err := json.Marshal(pj)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		res.Parts = append(res.Parts, js)
	}
	return json.Marshal(res)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.WithStack(err)
	}

	switch mj.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return errors.Wrapf(ErrUnexpectedRole, "role %q", mj.Role)
	}

	m.Role = mj.Role
	m.Parts = nil
	if mj.Text != "" || len(mj.Parts) == 0 {
		m.Parts = []ContentPart{TextContent{Text: mj.Text}}
		return nil
	}

	for _, raw := range mj.Parts {
		var pj partJSON
		if err := json.Unmarshal(raw, &pj); err != nil {
			return errors.WithStack(err)
		}
		switch pj.Type {
		case partTypeText:
			m.Parts = append(m.Parts, TextContent{Text: pj.Text})
		case partTypeToolCall:
			if pj.ToolCall == nil {
				return errors.New("missing tool_call in part")
			}
			m.Parts = append(m.Parts, *pj.ToolCall)
		case partTypeToolResponse:
			if pj.ToolResponse == nil {
				return errors.New("missing tool_response in part")
			}
			m.Parts = append(m.Parts, *pj.ToolResponse)
		default:
			return errors.Newf("unknown content part type: %q", pj.Type)
		}
	}
	return nil
}
