package policy

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

// Document is the YAML form of a policy.
type Document struct {
	Roles       []string            `yaml:"roles"`
	Inherits    map[string][]string `yaml:"inherits"`
	Permissions map[string][]string `yaml:"permissions"`
}

// ParseDocument decodes YAML, rejecting unknown fields.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, ErrEmptyPolicy
		}
		return Document{}, fmt.Errorf("policy: parse document: %w", err)
	}
	return doc, nil
}

// Build turns a document into a ready engine.
func Build(doc Document) (*Engine, error) {
	roles := make([]Role, 0, len(doc.Roles))
	for _, raw := range doc.Roles {
		if r := NormalizeRole(raw); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return nil, ErrEmptyPolicy
	}

	parents := make([]string, 0, len(doc.Inherits))
	for parent := range doc.Inherits {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	var edges []Edge
	for _, parent := range parents {
		for _, child := range doc.Inherits[parent] {
			edges = append(edges, Edge{Parent: NormalizeRole(parent), Child: NormalizeRole(child)})
		}
	}
	graph, err := NewRoleGraph(roles, edges)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc.Permissions))
	for key := range doc.Permissions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	grants := make([]Grant, 0, len(keys))
	for _, key := range keys {
		g := Grant{Permission: NormalizePermission(key)}
		for _, raw := range doc.Permissions[key] {
			g.Roles = append(g.Roles, NormalizeRole(raw))
		}
		grants = append(grants, g)
	}
	catalog, err := NewCatalog(grants)
	if err != nil {
		return nil, err
	}
	return NewEngine(graph, catalog)
}

// Default builds the embedded marketplace policy.
func Default() (*Engine, error) {
	doc, err := ParseDocument(defaultPolicy)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Source yields policy documents for startup and hot reload.
type Source interface {
	Name() string
	Load(ctx context.Context) (Document, error)
}

type embeddedSource struct{}

// EmbeddedSource serves the compiled-in default policy.
func EmbeddedSource() Source {
	return embeddedSource{}
}

func (embeddedSource) Name() string { return "embedded" }

func (embeddedSource) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	return ParseDocument(defaultPolicy)
}

type fileSource struct {
	path string
}

// FileSource reads the document from disk on every load.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (s fileSource) Name() string { return s.path }

func (s fileSource) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if s.path == "" {
		return Document{}, errors.New("policy: file source path empty")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, fmt.Errorf("policy: read %s: %w", s.path, err)
	}
	return ParseDocument(data)
}

// SourceFor picks the file source when a path is configured.
func SourceFor(path string) Source {
	if path == "" {
		return EmbeddedSource()
	}
	return FileSource(path)
}
