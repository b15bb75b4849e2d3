package json

import (
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/effective-security/toolflow/pkg/llmutils"
)

// Encoder produces compact JSON and decodes model-supplied JSON leniently.
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(llmutils.BytesTrimBackticks(bs))
	return ljson.Unmarshal(data, ret)
}
