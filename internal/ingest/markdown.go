package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"qanerd/internal/intent"
)

// ErrNoFrontMatter is returned for markdown files without a leading YAML
// front matter block.
var ErrNoFrontMatter = errors.New("no front matter")

const frontMatterDelim = "---"

// LoadMarkdown reads the YAML front matter of a manual-test markdown file.
// The ID defaults to the file stem and SourceRef to the path. Keys other than
// the intent fields are kept as extensions. The markdown body is ignored.
func LoadMarkdown(path string) (intent.ManualTestIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intent.ManualTestIntent{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fm, err := extractFrontMatter(data)
	if err != nil {
		return intent.ManualTestIntent{}, fmt.Errorf("%s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(fm, &raw); err != nil {
		return intent.ManualTestIntent{}, intent.NewValidationError("front matter in %s: %v", path, err)
	}

	in := intent.ManualTestIntent{SourceRef: path}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := raw[key]
		switch strings.ToLower(key) {
		case "id":
			in.ID = scalarString(val)
		case "summary":
			in.Summary = scalarString(val)
		case "feature":
			in.Feature = scalarString(val)
		case "risk_areas", "risks":
			in.RiskAreas = stringList(val)
		case "automation_status", "status":
			status, err := intent.ParseAutomationStatus(scalarString(val))
			if err != nil {
				return intent.ManualTestIntent{}, intent.NewValidationError("%s: %v", path, err)
			}
			in.AutomationStatus = status
		default:
			if in.Extensions == nil {
				in.Extensions = make(map[string]string)
			}
			in.Extensions[key] = scalarString(val)
		}
	}

	if in.ID == "" {
		in.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return in, nil
}

// extractFrontMatter returns the YAML between the opening and closing "---"
// lines at the top of a document.
func extractFrontMatter(data []byte) ([]byte, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() || strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff")) != frontMatterDelim {
		return nil, ErrNoFrontMatter
	}
	var buf bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == frontMatterDelim {
			return buf.Bytes(), nil
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, intent.NewValidationError("unterminated front matter")
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []interface{}, map[string]interface{}:
		out, err := yaml.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(string(out))
	default:
		return fmt.Sprint(t)
	}
}

// stringList accepts a YAML sequence or a comma-separated string.
func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, scalarString(item))
		}
		return out
	case string:
		parts := strings.Split(t, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}
