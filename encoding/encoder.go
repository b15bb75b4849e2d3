package encoding

import (
	"github.com/cockroachdb/errors"
	dummyenc "github.com/effective-security/toolflow/encoding/dummy"
	jsonenc "github.com/effective-security/toolflow/encoding/json"
	tomlenc "github.com/effective-security/toolflow/encoding/toml"
	yamlenc "github.com/effective-security/toolflow/encoding/yaml"
)

// Encoder converts tool payloads to and from text.
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type Mode = string

const (
	ModeJSON      Mode = "json"
	ModeYAML      Mode = "yaml"
	ModeTOML      Mode = "toml"
	ModePlainText Mode = "plain_text"
)

// ModeDefault is the mode used when none is configured.
// Allow to override in apps
var ModeDefault = ModeJSON

// ErrUnsupportedMode is returned for an unknown encoding mode.
var ErrUnsupportedMode = errors.New("unsupported encoding mode")

// NewEncoder returns the encoder for the mode, empty mode is ModeDefault.
func NewEncoder(mode Mode) (Encoder, error) {
	if mode == "" {
		mode = ModeDefault
	}
	switch mode {
	case ModeJSON:
		return jsonenc.NewEncoder(), nil
	case ModeYAML:
		return yamlenc.NewEncoder(), nil
	case ModeTOML:
		return tomlenc.NewEncoder(), nil
	case ModePlainText:
		return dummyenc.NewEncoder(), nil
	default:
		return nil, errors.WithMessagef(ErrUnsupportedMode, "%q", mode)
	}
}

// Marshal encodes v in the given mode.
func Marshal(mode Mode, v any) (string, error) {
	enc, err := NewEncoder(mode)
	if err != nil {
		return "", err
	}
	bs, err := enc.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode %s", mode)
	}
	return string(bs), nil
}

// Unmarshal decodes data in the given mode into v.
func Unmarshal(mode Mode, data []byte, v any) error {
	enc, err := NewEncoder(mode)
	if err != nil {
		return err
	}
	if err = enc.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", mode)
	}
	return nil
}

var (
	_ Encoder = (*dummyenc.Encoder)(nil)
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)
)
