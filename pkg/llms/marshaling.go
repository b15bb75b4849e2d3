package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// part type discriminators used in the JSON form of a Message
const (
	partTypeText         = "text"
	partTypeBinary       = "binary"
	partTypeToolCall     = "tool_call"
	partTypeToolResponse = "tool_response"
)

// ErrUnknownPartType is returned when a serialized part has an unknown type.
var ErrUnknownPartType = errors.New("unknown content part type")

type partJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	MIMEType     string            `json:"mime_type,omitempty"`
	Data         []byte            `json:"data,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

type messageJSON struct {
	Role  Role       `json:"role"`
	Parts []partJSON `json:"parts"`
}

// MarshalJSON encodes the message with a type tag on every part.
func (m Message) MarshalJSON() ([]byte, error) {
	mj := messageJSON{
		Role:  m.Role,
		Parts: make([]partJSON, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		switch typ := p.(type) {
		case TextContent:
			mj.Parts = append(mj.Parts, partJSON{Type: partTypeText, Text: typ.Text})
		case BinaryContent:
			mj.Parts = append(mj.Parts, partJSON{Type: partTypeBinary, MIMEType: typ.MIMEType, Data: typ.Data})
		case ToolCall:
			tc := typ
			mj.Parts = append(mj.Parts, partJSON{Type: partTypeToolCall, ToolCall: &tc})
		case ToolCallResponse:
			tr := typ
			mj.Parts = append(mj.Parts, partJSON{Type: partTypeToolResponse, ToolResponse: &tr})
		default:
			return nil, errors.WithMessagef(ErrUnknownPartType, "%T", p)
		}
	}
	return json.Marshal(mj)
}

// UnmarshalJSON decodes the message produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.Wrap(err, "unable to decode message")
	}
	m.Role = mj.Role
	m.Parts = make([]ContentPart, 0, len(mj.Parts))
	for _, p := range mj.Parts {
		switch p.Type {
		case partTypeText:
			m.Parts = append(m.Parts, TextContent{Text: p.Text})
		case partTypeBinary:
			m.Parts = append(m.Parts, BinaryContent{MIMEType: p.MIMEType, Data: p.Data})
		case partTypeToolCall:
			if p.ToolCall == nil {
				return errors.New("tool_call part without payload")
			}
			m.Parts = append(m.Parts, *p.ToolCall)
		case partTypeToolResponse:
			if p.ToolResponse == nil {
				return errors.New("tool_response part without payload")
			}
			m.Parts = append(m.Parts, *p.ToolResponse)
		default:
			return errors.WithMessagef(ErrUnknownPartType, "%q", p.Type)
		}
	}
	return nil
}
