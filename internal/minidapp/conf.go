package minidapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ConfFile is the manifest every MiniDapp archive carries at its root.
const ConfFile = "dapp.conf"

// Conf is the content of dapp.conf.
type Conf struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Browser     string `json:"browser"`
}

const confSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version"],
  "properties": {
    "name":        {"type": "string", "minLength": 1, "maxLength": 64},
    "version":     {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "icon":        {"type": "string"},
    "category":    {"type": "string"},
    "browser":     {"type": "string"},
    "permission":  {"type": "string", "enum": ["read", "write"]}
  }
}`

var (
	compiledConfSchema *jsonschema.Schema
	confSchemaErr      error
	confSchemaOnce     sync.Once
)

func confSchemaCompiled() (*jsonschema.Schema, error) {
	confSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("inline://dapp.conf", strings.NewReader(confSchema)); err != nil {
			confSchemaErr = err
			return
		}
		compiledConfSchema, confSchemaErr = compiler.Compile("inline://dapp.conf")
	})
	return compiledConfSchema, confSchemaErr
}

// ParseConf validates raw dapp.conf content and decodes it. The version must be semver.
func ParseConf(raw []byte) (*Conf, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidConf.Msg("dapp.conf is not valid JSON")
	}
	schema, err := confSchemaCompiled()
	if err != nil {
		return nil, ErrMiniDapp.MsgErr("unable to compile dapp.conf schema", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, ErrInvalidConf.MsgErr("dapp.conf is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, ErrInvalidConf.Msg(schemaMessage(verr))
		}
		return nil, ErrInvalidConf.Err(err)
	}
	var conf Conf
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, ErrInvalidConf.Err(err)
	}
	if _, err := semver.NewVersion(conf.Version); err != nil {
		return nil, ErrInvalidConf.Msgf("version %q is not a semantic version", conf.Version)
	}
	return &conf, nil
}

// schemaMessage flattens the innermost validation causes into one line.
func schemaMessage(verr *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return "dapp.conf " + strings.Join(msgs, "; ")
}

// LoadConf reads and validates dir/dapp.conf.
func LoadConf(dir string) (*Conf, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ConfFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrInvalidProject.Msg("dapp.conf not found in project directory")
		}
		return nil, ErrIO.MsgErr("unable to read dapp.conf", err)
	}
	return ParseConf(raw)
}

func (c *Conf) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
