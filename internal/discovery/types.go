// internal/discovery/types.go
package discovery

// ScanFile is one recognized report on disk. It is immutable for the run.
type ScanFile struct {
	Component string `json:"component" yaml:"component"`
	ScanType  string `json:"scan_type" yaml:"scan_type"`
	Path      string `json:"path" yaml:"path"`
}

// Component groups the recognized reports found under one top-level directory.
type Component struct {
	Name  string     `json:"name" yaml:"name"`
	Dir   string     `json:"dir" yaml:"dir"`
	Files []ScanFile `json:"files" yaml:"files"`
}

// Inventory is the ordered result of a discovery walk. Components are sorted
// by name and files within a component by path.
type Inventory struct {
	Root       string      `json:"root" yaml:"root"`
	Components []Component `json:"components" yaml:"components"`
}

// FileCount returns the number of recognized reports across all components.
func (inv Inventory) FileCount() int {
	n := 0
	for _, c := range inv.Components {
		n += len(c.Files)
	}
	return n
}

// Empty reports whether discovery recognized nothing.
func (inv Inventory) Empty() bool {
	return inv.FileCount() == 0
}

// Files flattens the inventory in component order.
func (inv Inventory) Files() []ScanFile {
	files := make([]ScanFile, 0, inv.FileCount())
	for _, c := range inv.Components {
		files = append(files, c.Files...)
	}
	return files
}
