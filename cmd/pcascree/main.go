// Command pcascree fits a principal component analysis over a dataset and
// renders the scree chart of its spectrum.
//
// Usage:
//
//	pcascree -components 5 -o scree.png data.csv
//	pcascree -components 5 rank0.pcs rank1.pcs
//
// CSV input is partitioned over -ranks in-process engines. Shard files are
// mapped one per rank and fed to the fit without copying, the same staging
// a multi-host deployment uses.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mnmg/pcago"
	"github.com/mnmg/pcago/blobstore"
	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/model"
	"github.com/mnmg/pcago/partition"
	"github.com/mnmg/pcago/shardfile"
	"github.com/mnmg/pcago/solver"
)

func main() {
	var (
		components = flag.Int("components", 0, "Number of components to keep (0 keeps all)")
		algorithm  = flag.String("algorithm", "cov-eig-dc", "Solver: cov-eig-dc, cov-eig-jacobi or qr")
		ranks      = flag.Int("ranks", 1, "Number of in-process ranks to partition the rows over")
		output     = flag.String("o", "scree.png", "Scree chart output path (.png, .svg or .pdf)")
		saveDir    = flag.String("save", "", "Directory to store a model snapshot in (optional)")
		header     = flag.Bool("header", false, "Skip the first CSV row")
		whiten     = flag.Bool("whiten", false, "Record whitened projections in the model")
		verbose    = flag.Bool("verbose", false, "Enable verbose fit logging")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <data.csv | rank0.pcs rank1.pcs ...>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	alg, err := solver.ParseAlgorithm(*algorithm)
	if err != nil {
		log.Fatalf("Bad -algorithm: %v", err)
	}

	params := pcago.DefaultParams()
	params.NComponents = *components
	params.Algorithm = alg
	params.Whiten = *whiten
	params.Verbose = *verbose

	var m *model.Model[float64]
	if strings.HasSuffix(flag.Arg(0), ".pcs") {
		m, err = fitShardFiles(flag.Args(), params, *verbose)
		if err != nil {
			log.Fatalf("Fit failed: %v", err)
		}
	} else {
		if flag.NArg() != 1 {
			log.Fatalf("CSV mode takes exactly one input file, got %d", flag.NArg())
		}
		csvPath := flag.Arg(0)

		data, rows, cols, err := readCSV(csvPath, *header)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", csvPath, err)
		}
		if *verbose {
			fmt.Printf("Read %d rows of %d features\n", rows, cols)
		}

		m, err = fit(data, rows, cols, *ranks, params, *verbose)
		if err != nil {
			log.Fatalf("Fit failed: %v", err)
		}
	}

	printSpectrum(m)

	if err := renderScree(m, *output); err != nil {
		log.Fatalf("Failed to render %s: %v", *output, err)
	}
	fmt.Printf("Wrote %s\n", *output)

	if *saveDir != "" {
		name := modelName(flag.Arg(0))
		version := time.Now().UTC().Format("20060102T150405")

		store := model.NewStore[float64](blobstore.NewLocal(*saveDir))
		if err := store.Save(context.Background(), name, version, m); err != nil {
			log.Fatalf("Failed to save snapshot: %v", err)
		}
		fmt.Printf("Saved snapshot %s/%s under %s\n", name, version, *saveDir)
	}
}

// fit partitions the rows as evenly as possible and runs one collective fit
// over an in-process cluster.
func fit(data []float64, rows, cols, ranks int, params pcago.Params, verbose bool) (*model.Model[float64], error) {
	split := evenSplit(rows, ranks)

	pairs := make([]partition.RankSize, len(split))
	shards := make([][]core.Shard[float64], len(split))
	offset := 0
	for rank, r := range split {
		pairs[rank] = partition.RankSize{Rank: rank, Rows: r}
		shards[rank] = []core.Shard[float64]{{
			Data: data[offset*cols : (offset+r)*cols],
			Rows: r,
		}}
		offset += r
	}

	return fitCluster(pairs, cols, shards, params, verbose)
}

// fitShardFiles maps one shard file per rank and feeds the fit straight from
// the mappings. The files stay open until the fit returns.
func fitShardFiles(paths []string, params pcago.Params, verbose bool) (*model.Model[float64], error) {
	files := make([]*shardfile.File[float64], 0, len(paths))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	cols := 0
	pairs := make([]partition.RankSize, len(paths))
	shards := make([][]core.Shard[float64], len(paths))
	for rank, path := range paths {
		f, err := shardfile.Open[float64](path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)

		if rank == 0 {
			cols = f.Cols()
		} else if f.Cols() != cols {
			return nil, fmt.Errorf("%s has %d columns, want %d", path, f.Cols(), cols)
		}
		if verbose {
			fmt.Printf("Mapped %s: %d rows of %d features\n", path, f.Rows(), f.Cols())
		}

		pairs[rank] = partition.RankSize{Rank: rank, Rows: f.Rows()}
		shards[rank] = []core.Shard[float64]{f.Shard()}
	}

	return fitCluster(pairs, cols, shards, params, verbose)
}

func fitCluster(pairs []partition.RankSize, cols int, shards [][]core.Shard[float64], params pcago.Params, verbose bool) (*model.Model[float64], error) {
	desc, err := partition.NewDescriptor(pairs, cols)
	if err != nil {
		return nil, err
	}

	var optFns []pcago.Option
	if verbose {
		optFns = append(optFns, pcago.WithLogLevel(slog.LevelDebug))
	}

	cluster, err := pcago.NewCluster[float64](desc, optFns...)
	if err != nil {
		return nil, err
	}
	defer cluster.Close()

	models, err := cluster.FitAll(context.Background(), shards, params)
	if err != nil {
		return nil, err
	}
	return models[0], nil
}

func evenSplit(rows, ranks int) []int {
	if ranks < 1 {
		ranks = 1
	}
	if ranks > rows {
		ranks = rows
	}

	split := make([]int, ranks)
	base, extra := rows/ranks, rows%ranks
	for i := range split {
		split[i] = base
		if i < extra {
			split[i]++
		}
	}
	return split
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

func printSpectrum(m *model.Model[float64]) {
	fmt.Printf("rows=%d features=%d components=%d algorithm=%s\n",
		m.TotalRows, m.NFeatures, m.NComponents, m.Algorithm)

	for i := range m.ExplainedVar {
		fmt.Printf("  pc%-3d explained_var=%-12.6g ratio=%.4f singular=%.6g\n",
			i+1, m.ExplainedVar[i], m.ExplainedVarRatio[i], m.SingularVals[i])
	}
	if m.NoiseVars > 0 {
		fmt.Printf("  noise floor %.6g over %d discarded components\n",
			m.NoiseVars, m.NFeatures-m.NComponents)
	}
}

func renderScree(m *model.Model[float64], path string) error {
	p := plot.New()
	p.Title.Text = "Scree chart"
	p.X.Label.Text = "component"
	p.Y.Label.Text = "explained variance ratio"
	p.Y.Min = 0

	ratios := make(plotter.XYs, len(m.ExplainedVarRatio))
	cumulative := make(plotter.XYs, len(m.ExplainedVarRatio))
	sum := 0.0
	for i, r := range m.ExplainedVarRatio {
		sum += float64(r)
		ratios[i] = plotter.XY{X: float64(i + 1), Y: float64(r)}
		cumulative[i] = plotter.XY{X: float64(i + 1), Y: sum}
	}

	line, points, err := plotter.NewLinePoints(ratios)
	if err != nil {
		return err
	}
	p.Add(line, points)
	p.Legend.Add("per component", line, points)

	cumLine, err := plotter.NewLine(cumulative)
	if err != nil {
		return err
	}
	cumLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(cumLine)
	p.Legend.Add("cumulative", cumLine)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func modelName(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		return "pca"
	}
	return name
}
