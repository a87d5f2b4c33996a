// Package dataset reads the per-day CSV input files of spec.md §6: one
// element per line, with an optional second column of signed integer values
// (positive for additions, negative for deletions in the deletion variant).
// Grounded on original_source/upsi/data_util.h's ReadClientDatasetFromFile.
package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/tree"
)

// ReadCSV parses path into a batch of plaintext entries. A missing second
// column yields Payload 0 (PSI/CA's unused sentinel, spec.md §3).
func ReadCSV(path string) ([]tree.PlaintextContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err)
	}
	defer f.Close()

	var out []tree.PlaintextContent
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		entry := tree.PlaintextContent{Element: []byte(strings.TrimSpace(fields[0]))}
		if len(fields) > 1 {
			v, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
			if err != nil {
				return nil, errs.Newf(errs.InvalidArgument, "dataset: %s line %d: bad value field: %v", path, lineNo, err)
			}
			entry.Payload = v
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.Transport, err)
	}
	return out, nil
}
