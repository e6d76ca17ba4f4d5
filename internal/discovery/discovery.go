// internal/discovery/discovery.go
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// ComponentSuffix is stripped from component directory names.
const ComponentSuffix = "-security-reports"

// Discover walks root and groups recognized reports by component. Only the
// immediate child directories of root are components; top-level files are
// ignored. Inside a component every file at any depth is matched by exact
// base name against the scan-type table. Components without a recognized
// file are left out.
func Discover(root string) (Inventory, error) {
	inv := Inventory{Root: root}

	entries, err := os.ReadDir(root)
	if err != nil {
		return inv, fmt.Errorf("failed to read scan directory %s: %w", root, err)
	}

	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if !isDir(entry, dir) {
			continue
		}
		component := ComponentName(entry.Name())

		files, err := collect(dir, component)
		if err != nil {
			return inv, err
		}
		if len(files) == 0 {
			continue
		}
		inv.Components = append(inv.Components, Component{Name: component, Dir: dir, Files: files})
	}

	// two directories can collapse to one name ("api" and "api-security-reports");
	// the directory breaks the tie so the order stays stable.
	sort.SliceStable(inv.Components, func(i, j int) bool {
		if inv.Components[i].Name != inv.Components[j].Name {
			return inv.Components[i].Name < inv.Components[j].Name
		}
		return inv.Components[i].Dir < inv.Components[j].Dir
	})
	return inv, nil
}

// isDir reports whether entry is a directory, following a symlink at the
// top level. Broken links are skipped.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func collect(dir, component string) ([]ScanFile, error) {
	// WalkDir does not descend into a symlinked root, so walk the target and
	// keep reporting paths under dir.
	walkRoot, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	var files []ScanFile
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}
		label, ok := LookupScanType(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}
		files = append(files, ScanFile{Component: component, ScanType: label, Path: filepath.Join(dir, rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ComponentName strips ComponentSuffix from a directory name.
func ComponentName(dirName string) string {
	return strings.TrimSuffix(dirName, ComponentSuffix)
}

// HumanizeComponent turns "risk-engine" into "Risk Engine". Hyphens become
// spaces one for one; a letter is uppercased when it follows a non-letter and
// lowercased otherwise, so "v2api" becomes "V2Api" and "risk_engine"
// becomes "Risk_Engine". Existing product names depend on this exact casing.
func HumanizeComponent(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevLetter := false
	for _, r := range strings.ReplaceAll(name, "-", " ") {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && prevLetter:
			r = unicode.ToLower(r)
		case isLetter:
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevLetter = isLetter
	}
	return b.String()
}
