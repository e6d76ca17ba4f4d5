package discovery

import "sort"

// scanTypes maps an exact report filename to the parser label the import
// endpoint expects. The table is part of the contract with the receiver and is
// only ever read.
var scanTypes = map[string]string{
	"dependency-check-report.json": "Dependency Check Scan",
	"spotbugsXml.xml":              "SpotBugs Scan",
	"checkstyle-result.xml":        "Checkstyle Scan",
	"audit-npm.json":               "NPM Audit Scan",
	"eslint-security.json":         "ESLint Scan",
	"retire-report.json":           "Retire.js Scan",
	"gitleaks-report.json":         "Gitleaks Scan",
}

// ScanTypes returns a copy of the filename to scan-type table.
func ScanTypes() map[string]string {
	out := make(map[string]string, len(scanTypes))
	for k, v := range scanTypes {
		out[k] = v
	}
	return out
}

// LookupScanType returns the label for an exact base filename.
func LookupScanType(filename string) (string, bool) {
	label, ok := scanTypes[filename]
	return label, ok
}

// RecognizedFilenames lists the table keys in sorted order.
func RecognizedFilenames() []string {
	names := make([]string, 0, len(scanTypes))
	for k := range scanTypes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
