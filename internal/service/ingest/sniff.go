package ingest

import (
	"fmt"
	"strings"

	"github.com/animus-labs/spec-relay/internal/domain"
	"gopkg.in/yaml.v3"
)

// sniffSpec extracts labels from a YAML specification so the pipeline can
// name runs before downloading the document. Content that is not a YAML
// mapping yields no labels; the document is still ingested as-is.
func sniffSpec(content []byte) domain.Metadata {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil || len(doc) == 0 {
		return nil
	}
	out := domain.Metadata{}
	if title := firstString(doc, "title", "name"); title != "" {
		out["spec_title"] = title
	}
	switch project := doc["project"].(type) {
	case string:
		if project = strings.TrimSpace(project); project != "" {
			out["project_name"] = project
		}
	case map[string]any:
		if name := firstString(project, "name"); name != "" {
			out["project_name"] = name
		}
	}
	switch sprint := doc["sprint"].(type) {
	case string, int:
		if label := strings.TrimSpace(fmt.Sprint(sprint)); label != "" {
			out["sprint"] = label
		}
	case map[string]any:
		if label := firstString(sprint, "id", "name"); label != "" {
			out["sprint"] = label
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case int:
			return fmt.Sprint(v)
		}
	}
	return ""
}
