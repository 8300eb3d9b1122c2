package model

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout lists the top-level nodes of an OpenCV storage file and the keys
// stored under each.
type Layout map[string][]string

// Missing returns the keys of node that are absent from the layout.
func (l Layout) Missing(node string, keys ...string) []string {
	have, ok := l[node]
	if !ok {
		return keys
	}
	var missing []string
	for _, k := range keys {
		if !slices.Contains(have, k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// CheckFormat rejects weight paths whose extension OpenCV cannot store to.
func CheckFormat(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".yml", ".yaml":
		return nil
	default:
		return fmt.Errorf("unsupported model file extension %q (use .xml or .yml)", filepath.Ext(path))
	}
}

// ReadLayout parses an OpenCV XML or YAML storage file. Empty, truncated and
// malformed files return an error.
func ReadLayout(path string) (Layout, error) {
	if err := CheckFormat(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}

	var layout Layout
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		layout, err = xmlLayout(data)
	} else {
		layout, err = yamlLayout(data)
	}
	if err != nil {
		return nil, err
	}
	if len(layout) == 0 {
		return nil, errors.New("no nodes stored")
	}
	return layout, nil
}

func xmlLayout(data []byte) (Layout, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	layout := Layout{}
	var node string
	depth := 0
	closed := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed weights: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if t.Name.Local != "opencv_storage" {
					return nil, fmt.Errorf("unexpected root element %q", t.Name.Local)
				}
			case 2:
				node = t.Name.Local
				layout[node] = nil
			case 3:
				layout[node] = append(layout[node], t.Name.Local)
			}
		case xml.EndElement:
			depth--
			if depth == 0 {
				closed = true
			}
		}
	}
	if !closed {
		return nil, errors.New("truncated weights")
	}
	return layout, nil
}

func yamlLayout(data []byte) (Layout, error) {
	// yaml.v3 only understands "%YAML 1.x"; OpenCV writes "%YAML:1.0".
	if bytes.HasPrefix(data, []byte("%YAML")) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			return nil, errors.New("truncated weights")
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed weights: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("weights are not a mapping")
	}

	layout := Layout{}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, value := root.Content[i].Value, root.Content[i+1]
		layout[name] = nil
		if value.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(value.Content); j += 2 {
			layout[name] = append(layout[name], value.Content[j].Value)
		}
	}
	return layout, nil
}
