package advisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const generalGuidance = "General guidance: Priority is capital preservation and trend alignment."

// Playbook holds strategy notes loaded from markdown files. The upper-cased
// file name is the lookup key; a note lands in the advisor prompt when its
// key appears in one of the signal's reasoning lines.
type Playbook struct {
	keys    []string
	entries map[string]string
}

// LoadPlaybook reads every .md file under dir. A missing directory yields an
// empty playbook, not an error.
func LoadPlaybook(dir string, logger *zap.Logger) *Playbook {
	p := &Playbook{entries: make(map[string]string)}

	files, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("no playbook directory", zap.String("dir", dir), zap.Error(err))
		return p
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			logger.Warn("skipping unreadable playbook", zap.String("file", f.Name()), zap.Error(err))
			continue
		}
		key := strings.ToUpper(strings.TrimSuffix(f.Name(), ".md"))
		p.entries[key] = string(content)
		p.keys = append(p.keys, key)
	}
	sort.Strings(p.keys)

	if len(p.entries) > 0 {
		logger.Info("playbooks loaded", zap.Int("count", len(p.entries)))
	}
	return p
}

// RelevantContext returns the playbook sections whose keys appear in the
// reasoning lines, or a general guidance line when nothing matches.
func (p *Playbook) RelevantContext(reasons []string) string {
	var sections []string
	for _, reason := range reasons {
		for _, key := range p.keys {
			if strings.Contains(reason, key) {
				sections = append(sections, fmt.Sprintf("### %s PLAYBOOK\n%s", key, p.entries[key]))
			}
		}
	}
	if len(sections) == 0 {
		return generalGuidance
	}
	return strings.Join(sections, "\n\n")
}
