package extract

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// utf8BOM makes spreadsheet tools detect the encoding; the exported files are
// opened in Excel far more often than they are parsed by machines.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// writeCSV writes header + rows to path atomically: a temp file in the same
// directory, then a rename. A download that races a finishing extraction sees
// either no file or the complete one, never a partial write.
func writeCSV(path string, header []string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if _, err = bw.Write(utf8BOM); err != nil {
		_ = tmp.Close()
		return err
	}

	w := csv.NewWriter(bw)
	if err = w.Write(header); err != nil {
		_ = tmp.Close()
		return err
	}
	for _, row := range rows {
		if err = w.Write(row); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
