package config

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

// TOMLParser is a koanf parser for TOML config files.
type TOMLParser struct{}

// TOML returns a koanf TOML parser.
func TOML() *TOMLParser {
	return &TOMLParser{}
}

// Unmarshal parses TOML bytes into a nested map.
func (p *TOMLParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal encodes a nested map as TOML.
func (p *TOMLParser) Marshal(o map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
