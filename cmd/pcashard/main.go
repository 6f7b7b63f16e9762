// Command pcashard splits a CSV dataset into per-rank shard files for
// pcascree and multi-host fits. Each output file holds a contiguous block of
// rows in the mmap-friendly shard layout.
//
// Usage:
//
//	pcashard -ranks 4 -out ./shards data.csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/shardfile"
)

func main() {
	var (
		ranks  = flag.Int("ranks", 2, "Number of shard files to produce")
		outDir = flag.String("out", ".", "Output directory")
		prefix = flag.String("prefix", "", "Output name prefix (defaults to the CSV base name)")
		header = flag.Bool("header", false, "Skip the first CSV row")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <data.csv>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	csvPath := flag.Arg(0)

	data, rows, cols, err := readCSV(csvPath, *header)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", csvPath, err)
	}

	name := *prefix
	if name == "" {
		base := filepath.Base(csvPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", *outDir, err)
	}

	n := *ranks
	if n < 1 {
		n = 1
	}
	if n > rows {
		n = rows
	}

	base, extra := rows/n, rows%n
	offset := 0
	for rank := 0; rank < n; rank++ {
		r := base
		if rank < extra {
			r++
		}

		shard := core.Shard[float64]{
			Data: data[offset*cols : (offset+r)*cols],
			Rows: r,
		}
		offset += r

		path := filepath.Join(*outDir, fmt.Sprintf("%s-%d.pcs", name, rank))
		if err := shardfile.Write(path, shard, cols); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		fmt.Printf("Wrote %s: %d rows of %d features\n", path, r, cols)
	}
}

func readCSV(path string, skipHeader bool) (data []float64, rows, cols int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if skipHeader {
			skipHeader = false
			continue
		}

		if cols == 0 {
			cols = len(record)
		} else if len(record) != cols {
			return nil, 0, 0, fmt.Errorf("row %d has %d fields, want %d", rows+1, len(record), cols)
		}

		for _, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("row %d: %w", rows+1, err)
			}
			data = append(data, v)
		}
		rows++
	}

	if rows == 0 {
		return nil, 0, 0, fmt.Errorf("%s holds no data rows", path)
	}
	return data, rows, cols, nil
}
