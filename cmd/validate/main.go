// Command validate checks an extraction output directory: the grammar of
// every output file, the records themselves, the agreement between files and
// the job ledger, and optionally the event dates against the catalog.
//
// Usage:
//
//	go run ./cmd/validate -out output
//	go run ./cmd/validate -out output -catalog fires_lakes.csv -kind lake
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	outDir       string
	catalogPath  string
	kind         string
	marginMonths int
}

func main() {
	var o options
	flag.StringVar(&o.outDir, "out", "", "extraction output directory")
	flag.StringVar(&o.catalogPath, "catalog", "", "event catalog CSV to cross-check event dates (optional)")
	flag.StringVar(&o.kind, "kind", "lake", "feature kind of the catalog: lake or river")
	flag.IntVar(&o.marginMonths, "margin", 2, "months of margin around each event")
	flag.Parse()

	if o.outDir == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(os.Stdout, o); code != 0 {
		os.Exit(code)
	}
}

// outputFile is one parsed output file.
type outputFile struct {
	id      string
	errLine string
	header  string
	records []domain.Record
}

func (f outputFile) isError() bool { return f.errLine != "" }

func run(w io.Writer, o options) int {
	fmt.Fprintln(w, "=== Extraction Output Validation ===")

	if _, err := os.Stat(o.outDir); err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}
	out, err := store.NewOutputStore(o.outDir)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}
	ids, err := out.List()
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}

	grammar := &phase{name: "Phase 1: Output grammar"}
	files := parseFiles(grammar, out, ids)

	phases := []*phase{
		grammar,
		validateRecords(files),
		validateLedger(o.outDir, files),
	}
	if o.catalogPath != "" {
		phases = append(phases, validateCatalog(o, files))
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	records, errorFiles := 0, 0
	for _, f := range files {
		records += len(f.records)
		if f.isError() {
			errorFiles++
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files: %d output, %d error; %d records\n", len(files), errorFiles, records)

	for _, p := range phases {
		for _, n := range p.notes {
			fmt.Fprintf(w, "  Note: %s\n", n)
		}
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: grammar ──

var headerPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z ]*: (\S+) ImageNum: \d+$`)

func parseFiles(p *phase, out *store.OutputStore, ids []string) []outputFile {
	files := make([]outputFile, 0, len(ids))
	for _, id := range ids {
		content, err := out.Read(id)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		files = append(files, parseFile(p, id, string(content)))
	}
	return files
}

func parseFile(p *phase, id, content string) outputFile {
	f := outputFile{id: id}
	if !strings.HasSuffix(content, "\n") {
		p.errorf("%s: missing trailing newline", id)
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		p.errorf("%s: empty file", id)
		return f
	}

	if strings.HasPrefix(lines[0], domain.ErrorPrefix) {
		f.errLine = lines[0]
		if len(lines) > 1 {
			p.errorf("%s: error file has %d lines", id, len(lines))
		}
		return f
	}

	if m := headerPattern.FindStringSubmatch(lines[0]); m != nil {
		f.header = lines[0]
		if m[1] != id {
			p.errorf("%s: header names feature %s", id, m[1])
		}
		lines = lines[1:]
	}

	for i, line := range lines {
		rec, err := domain.ParseRecord(line)
		if err != nil {
			p.errorf("%s line %d: %v", id, i+1, err)
			continue
		}
		if rec.FeatureID != id {
			p.errorf("%s line %d: feature id %s", id, i+1, rec.FeatureID)
		}
		if len(rec.Values) != len(domain.OutputBands()) {
			p.errorf("%s line %d: %d values, want %d", id, i+1, len(rec.Values), len(domain.OutputBands()))
		}
		for _, d := range []string{rec.EventStart, rec.EventEnd, rec.Date} {
			if _, err := domain.ParseDate(d); err != nil {
				p.errorf("%s line %d: %v", id, i+1, err)
			}
		}
		checkPrecision(p, id, i+1, line)
		f.records = append(f.records, rec)
	}
	if len(f.records) == 0 {
		p.errorf("%s: no records", id)
	}
	return f
}

// checkPrecision verifies the rounding of the raw tokens.
func checkPrecision(p *phase, id string, lineNum int, line string) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return
	}
	values := strings.Split(strings.Trim(fields[4], "[]"), ",")
	for _, v := range values {
		if decimals(v) > domain.ValueDigits {
			p.errorf("%s line %d: value %s has more than %d decimals", id, lineNum, v, domain.ValueDigits)
		}
	}
	if decimals(fields[5]) > domain.ElapsedDigits {
		p.errorf("%s line %d: elapsed %s has more than %d decimals", id, lineNum, fields[5], domain.ElapsedDigits)
	}
}

func decimals(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

// ── Phase 2: records ──

func validateRecords(files []outputFile) *phase {
	p := &phase{name: "Phase 2: Record content"}
	for _, f := range files {
		prev := ""
		for i, rec := range f.records {
			if domain.IsDegenerate(rec.Values) {
				p.errorf("%s line %d: all-zero values", f.id, i+1)
			}
			if prev != "" && rec.Date <= prev {
				p.errorf("%s line %d: date %s not after %s", f.id, i+1, rec.Date, prev)
			}
			prev = rec.Date
			if rec.EventStart != f.records[0].EventStart || rec.EventEnd != f.records[0].EventEnd {
				p.errorf("%s line %d: event window differs from line 1", f.id, i+1)
			}
		}
	}
	return p
}

// ── Phase 3: ledger ──

func validateLedger(outDir string, files []outputFile) *phase {
	p := &phase{name: "Phase 3: Ledger consistency"}
	path := filepath.Join(outDir, store.LedgerFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		p.notef("no %s, ledger checks skipped", store.LedgerFile)
		return p
	}
	ledger, err := store.OpenLedger(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	entries := ledger.Entries()
	byID := make(map[string]outputFile, len(files))
	for _, f := range files {
		byID[f.id] = f
		e, ok := entries[f.id]
		if !ok {
			p.notef("%s has an output file but no ledger entry", f.id)
			continue
		}
		switch {
		case f.isError() && e.State != domain.StateFailed:
			p.errorf("%s: error file but ledger state %s", f.id, e.State)
		case !f.isError() && e.State != domain.StateDone:
			p.errorf("%s: output file but ledger state %s", f.id, e.State)
		case !f.isError() && e.Records != len(f.records):
			p.errorf("%s: %d records in file, ledger says %d", f.id, len(f.records), e.Records)
		}
	}
	for _, id := range ledger.IDs() {
		e := entries[id]
		_, hasFile := byID[id]
		switch e.State {
		case domain.StateDone:
			if !hasFile {
				p.errorf("%s: ledger state done but no output file", id)
			}
		case domain.StateEmpty, domain.StateIneligible, domain.StatePending:
			if hasFile {
				p.errorf("%s: ledger state %s but an output file exists", id, e.State)
			}
		}
	}
	return p
}

// ── Phase 4: catalog ──

func validateCatalog(o options, files []outputFile) *phase {
	p := &phase{name: "Phase 4: Catalog cross-check"}
	schema, err := catalog.SchemaFor(catalog.Kind(o.kind))
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	rows, err := catalog.LoadEvents(o.catalogPath, schema)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	events := make(map[string]catalog.EventRow, len(rows))
	for _, r := range rows {
		if _, dup := events[r.ID]; !dup {
			events[r.ID] = r
		}
	}

	for _, f := range files {
		ev, ok := events[f.id]
		if !ok {
			p.errorf("%s: not in catalog", f.id)
			continue
		}
		if len(f.records) == 0 {
			continue
		}
		feature := domain.Feature{ID: f.id, EventStart: ev.Start, EventEnd: ev.End}
		window, err := domain.EventWindow(feature, o.marginMonths)
		if err != nil {
			p.errorf("%s: %v", f.id, err)
			continue
		}
		for i, rec := range f.records {
			if rec.EventStart != ev.Start || rec.EventEnd != ev.End {
				p.errorf("%s line %d: event %s %s, catalog has %s %s", f.id, i+1, rec.EventStart, rec.EventEnd, ev.Start, ev.End)
			}
			if d, err := domain.ParseDate(rec.Date); err == nil && !window.Contains(d) {
				p.errorf("%s line %d: date %s outside %s", f.id, i+1, rec.Date, window)
			}
		}
	}
	return p
}
