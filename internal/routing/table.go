// Package routing maps case numbers to destination directories.
package routing

import "github.com/nhle/nefwatch/internal/model"

// Table resolves a case number to its destination directory. Mappings are
// owned by the configuration and never mutated by the pipeline.
type Table struct {
	cases         map[string]string
	defaultFolder string
}

// NewTable builds a routing table from the configured case map and the
// default/unrouted directory. Paths are returned with "~" expanded.
func NewTable(cfg *model.Config) *Table {
	return &Table{
		cases:         cfg.Cases,
		defaultFolder: cfg.DefaultFolder,
	}
}

// Route returns the destination directory for caseID and whether the case
// has a configured mapping. An empty or unmapped caseID routes to the
// default directory with known=false; the caller surfaces that as a
// warning so the operator can add a mapping later.
func (t *Table) Route(caseID string) (dir string, known bool) {
	if caseID != "" {
		if folder, ok := t.cases[caseID]; ok {
			return model.ExpandHome(folder), true
		}
	}
	return model.ExpandHome(t.defaultFolder), false
}
