package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/lite/allocator"
	"github.com/born-ml/lite/net"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench PARAM...",
		Short: "Time inference of param files with zero weights",
		Args:  cobra.MinimumNArgs(1),
		RunE:  benchHandler,
	}
	benchCmd.Flags().Int("loops", 4, "Timed iterations per model")
	benchCmd.Flags().Int("warmup", 8, "Untimed iterations before timing")
	benchCmd.Flags().Int("jobs", 1, "Concurrent extractors per iteration")
	benchCmd.Flags().Duration("cooldown", 0, "Pause before timing each model")
	benchCmd.Flags().String("input", "data", "Input blob name")
	benchCmd.Flags().String("output", "output", "Output blob name")
	benchCmd.Flags().String("shape", "224,224,3", "Input shape as w[,h[,c]]")
	return benchCmd
}

// zeroReader serves an endless stream of zero bytes as model weights.
type zeroReader struct{}

func (zeroReader) Scan(string, any) (int, error) { return 0, nil }

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type benchConfig struct {
	loops, warmup, jobs int
	cooldown            time.Duration
	input, output       string
	shape               []int
}

type benchResult struct {
	min, max, avg time.Duration
}

func benchHandler(cmd *cobra.Command, args []string) error {
	opt, err := optionFromFlags(cmd)
	if err != nil {
		return err
	}
	opt.LightMode = true

	flags := cmd.Flags()
	var cfg benchConfig
	cfg.loops, _ = flags.GetInt("loops")
	cfg.warmup, _ = flags.GetInt("warmup")
	cfg.jobs, _ = flags.GetInt("jobs")
	cfg.cooldown, _ = flags.GetDuration("cooldown")
	cfg.input, _ = flags.GetString("input")
	cfg.output, _ = flags.GetString("output")
	shapeFlag, _ := flags.GetString("shape")
	if cfg.shape, err = parseShape(shapeFlag); err != nil {
		return err
	}
	if cfg.loops <= 0 || cfg.jobs <= 0 {
		return fmt.Errorf("loops and jobs must be positive")
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "loop_count = %d\nnum_threads = %d\njobs = %d\n", cfg.loops, opt.NumThreads, cfg.jobs)

	var data [][]string
	for _, path := range args {
		r, err := benchmark(cmd, path, cfg, opt)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		data = append(data, []string{name, millis(r.min), millis(r.max), millis(r.avg)})
	}

	table := newTable(cmd.OutOrStdout(), []string{"MODEL", "MIN (ms)", "MAX (ms)", "AVG (ms)"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Microseconds())/1000)
}

func benchmark(cmd *cobra.Command, path string, cfg benchConfig, opt net.Option) (benchResult, error) {
	blobs := allocator.NewPoolAllocator()
	workspace := allocator.NewPoolAllocator()
	if err := blobs.SetSizeCompareRatio(0); err != nil {
		return benchResult{}, err
	}
	if err := workspace.SetSizeCompareRatio(0.5); err != nil {
		return benchResult{}, err
	}
	opt.BlobAllocator = blobs
	opt.WorkspaceAllocator = workspace

	n := net.New()
	n.Opt = opt
	if err := loadParam(cmd, n, path); err != nil {
		return benchResult{}, err
	}
	if err := n.LoadModel(zeroReader{}); err != nil {
		n.Clear()
		return benchResult{}, err
	}

	in := constantInput(cfg.shape, 0.01)
	iterate := func() error {
		var g errgroup.Group
		for range cfg.jobs {
			g.Go(func() error {
				ex := n.CreateExtractor()
				defer ex.Close()
				if err := ex.Input(cfg.input, in); err != nil {
					return err
				}
				out, err := ex.Extract(cfg.output)
				if err != nil {
					return err
				}
				out.Release()
				return nil
			})
		}
		return g.Wait()
	}

	r, err := timeLoops(iterate, cfg)
	in.Release()
	n.Clear()
	if err != nil {
		return r, err
	}
	if err := blobs.Close(); err != nil {
		return r, err
	}
	return r, workspace.Close()
}

func timeLoops(iterate func() error, cfg benchConfig) (benchResult, error) {
	for range cfg.warmup {
		if err := iterate(); err != nil {
			return benchResult{}, err
		}
	}
	if cfg.cooldown > 0 {
		time.Sleep(cfg.cooldown)
	}

	r := benchResult{min: time.Duration(1<<63 - 1)}
	var total time.Duration
	for range cfg.loops {
		start := time.Now()
		if err := iterate(); err != nil {
			return benchResult{}, err
		}
		d := time.Since(start)
		r.min = min(r.min, d)
		r.max = max(r.max, d)
		total += d
	}
	r.avg = total / time.Duration(cfg.loops)
	return r, nil
}
