package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config files compose through a $include key: a deployment keeps shared
// batch and summarizer tuning in a base file and layers workspace
// credentials on top. Included files load first, so the including file
// wins on conflicts. ${ENV} references expand before parsing, which is
// how tokens stay out of the files themselves.
const includeKey = "$include"

// LoadRaw reads the file at path, expands environment references, resolves
// $include chains, and returns the merged raw document.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	ld := &rawLoader{visiting: map[string]bool{}}
	return ld.load(path)
}

// rawLoader tracks the include chain currently being resolved so that a
// file including itself, directly or through intermediaries, fails instead
// of recursing forever.
type rawLoader struct {
	visiting map[string]bool
}

func (l *rawLoader) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if l.visiting[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	l.visiting[abs] = true
	defer delete(l.visiting, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument([]byte(os.ExpandEnv(string(data))), filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	includes, err := takeIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := l.load(inc)
		if err != nil {
			return nil, err
		}
		overlay(merged, sub)
	}
	overlay(merged, doc)
	return merged, nil
}

// parseDocument decodes one file body by extension. JSON5 covers both
// .json and .json5; everything else is treated as YAML.
func parseDocument(data []byte, ext string) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// takeIncludes removes the $include entry from doc and returns its paths.
// The value may be a single path or a list of paths.
func takeIncludes(doc map[string]any) ([]string, error) {
	val, ok := doc[includeKey]
	if !ok {
		return nil, nil
	}
	delete(doc, includeKey)

	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, entry := range v {
			p, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			if strings.TrimSpace(p) != "" {
				paths = append(paths, p)
			}
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s must be a path or list of paths", includeKey)
	}
}

// overlay merges src into dst in place. Nested maps merge recursively;
// scalars and lists from src replace whatever dst held.
func overlay(dst, src map[string]any) {
	for key, val := range src {
		srcMap, srcIsMap := val.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			overlay(dstMap, srcMap)
			continue
		}
		dst[key] = val
	}
}

// decodeRawConfig converts the merged raw document into a Config, rejecting
// keys the schema does not define so that typos surface at startup instead
// of silently running with defaults.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
