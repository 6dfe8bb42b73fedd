package layout

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/anda-ren/starwhale/pkg/schema"
	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// Parse reads a layout document in JSON or YAML. Both accept the object form
// and the bare list of nodes, which gets the current format version.
func Parse(data []byte) (*schema.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "layout document is empty")
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var doc schema.Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid layout JSON").WithCause(err)
		}
		return &doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(trimmed, &root); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid layout YAML").WithCause(err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "layout document is empty")
	}

	body := root.Content[0]
	switch body.Kind {
	case yaml.SequenceNode:
		var widgets []schema.NodeSpec
		if err := body.Decode(&widgets); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid layout YAML").WithCause(err)
		}
		return &schema.Document{Version: schema.CurrentLayoutVersion, Widgets: widgets}, nil
	case yaml.MappingNode:
		var doc schema.Document
		if err := body.Decode(&doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid layout YAML").WithCause(err)
		}
		return &doc, nil
	default:
		return nil, schema.NewError(schema.ErrCodeValidation, "layout document must be a mapping or a list")
	}
}

// Marshal encodes a document as indented JSON.
func Marshal(doc *schema.Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// MarshalYAML encodes a document as YAML.
func MarshalYAML(doc *schema.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the hex sha256 of the document's RFC 8785 canonical
// JSON. Two documents with the same content share a fingerprint regardless
// of key order or whitespace.
func Fingerprint(doc *schema.Document) (string, error) {
	if doc == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "layout document is nil")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "failed to serialize layout document").WithCause(err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeValidation, "failed to canonicalize layout document").WithCause(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
