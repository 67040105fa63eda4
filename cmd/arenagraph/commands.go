package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/arenagraph/graph"
	"github.com/born-ml/arenagraph/tensor"
)

func newAddCmd() *cobra.Command {
	var (
		a, b    []float32
		threads int
		margin  int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add two vectors through a one-node graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdd(cmd.Context(), cmd.OutOrStdout(), a, b, threads, margin)
		},
	}

	cmd.Flags().Float32SliceVar(&a, "a", []float32{1, 2, 3, 4}, "First operand")
	cmd.Flags().Float32SliceVar(&b, "b", []float32{10, 20, 30, 40}, "Second operand")
	cmd.Flags().IntVar(&threads, "threads", 1, "Threads per node (<= 0 for one per CPU)")
	cmd.Flags().IntVar(&margin, "margin", 1024, "Arena safety margin in bytes")
	return cmd
}

// runAdd sizes a context for two inputs and their sum, computes the sum and
// prints it.
func runAdd(ctx context.Context, w io.Writer, a, b []float32, threads, margin int) error {
	log := klog.FromContext(ctx)

	capacity := tensor.Estimate{
		Tensors: 3,
		Data:    tensor.DataSize(tensor.Float32, len(a)) + tensor.DataSize(tensor.Float32, len(b)) + tensor.DataSize(tensor.Float32, len(a)),
		Graph:   graph.Overhead(graph.DefaultSize),
		Margin:  margin,
	}.Capacity()
	log.V(1).Info("Sized context", "capacity", humanize.IBytes(uint64(capacity))) //nolint:gosec // non-negative

	tc, err := tensor.NewContext(capacity)
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer tc.Close()

	x, err := vector(tc, "a", a)
	if err != nil {
		return err
	}
	y, err := vector(tc, "b", b)
	if err != nil {
		return err
	}

	sum, err := tc.Add(x, y)
	if err != nil {
		return err
	}

	g, err := graph.Build(tc, sum)
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}
	if err := graph.Compute(ctx, g, threads); err != nil {
		return fmt.Errorf("computing graph: %w", err)
	}

	out, err := tc.Float32(sum)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Result of tensor addition:")
	for _, v := range out {
		fmt.Fprintf(w, "%.2f ", v)
	}
	fmt.Fprintln(w)

	log.V(1).Info("Arena usage", "arena", tc.Arena().String())
	return nil
}

func vector(tc *tensor.Context, name string, values []float32) (tensor.Handle, error) {
	h, err := tc.NewTensor1D(tensor.Float32, len(values))
	if err != nil {
		return tensor.NoTensor, fmt.Errorf("creating %s: %w", name, err)
	}
	if err := tc.SetName(h, name); err != nil {
		return tensor.NoTensor, err
	}
	if err := tc.SetFloat32(h, values); err != nil {
		return tensor.NoTensor, fmt.Errorf("setting %s: %w", name, err)
	}
	return h, nil
}

func newEstimateCmd() *cobra.Command {
	var (
		tensors   int
		elements  int
		graphSize int
		margin    int
		noAlloc   bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the arena capacity for a workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tensors < 0 || elements <= 0 || graphSize < 0 {
				return errors.New("tensors and graph-size must be >= 0, elements must be > 0")
			}

			e := tensor.Estimate{
				Tensors: tensors,
				Margin:  margin,
			}
			if !noAlloc {
				size := tensor.DataSize(tensor.Float32, elements)
				if size < 0 {
					return fmt.Errorf("%d elements do not fit in an arena", elements)
				}
				e.Data = tensors * size
			}
			if graphSize > 0 {
				if e.Graph = graph.Overhead(graphSize); e.Graph < 0 {
					return fmt.Errorf("a graph of %d nodes does not fit in an arena", graphSize)
				}
			}

			w := cmd.OutOrStdout()
			capacity := e.Capacity()
			fmt.Fprintf(w, "tensors:   %d x %d float32 elements\n", tensors, elements)
			fmt.Fprintf(w, "overhead:  %d bytes per tensor\n", tensor.TensorOverhead())
			fmt.Fprintf(w, "data:      %d bytes\n", e.Data)
			fmt.Fprintf(w, "graph:     %d bytes\n", e.Graph)
			fmt.Fprintf(w, "capacity:  %d bytes (%s)\n", capacity, humanize.IBytes(uint64(capacity))) //nolint:gosec // non-negative
			return nil
		},
	}

	cmd.Flags().IntVar(&tensors, "tensors", 3, "Number of tensors")
	cmd.Flags().IntVar(&elements, "elements", 4, "Elements per tensor")
	cmd.Flags().IntVar(&graphSize, "graph-size", graph.DefaultSize, "Graph node capacity (0 for no graph)")
	cmd.Flags().IntVar(&margin, "margin", 1024, "Safety margin in bytes")
	cmd.Flags().BoolVar(&noAlloc, "no-alloc", false, "Keep tensor data out of the arena")
	return cmd
}

type benchConfig struct {
	elements   int
	iterations int
	threads    int
	minChunk   int
}

func newBenchCmd() *cobra.Command {
	var (
		cfg         benchConfig
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated evaluation of an element-wise graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.elements <= 0 || cfg.iterations <= 0 {
				return errors.New("elements and iterations must be > 0")
			}

			reg := prometheus.NewRegistry()
			if err := runBench(cmd.Context(), cmd.OutOrStdout(), cfg, reg); err != nil {
				return err
			}
			if metricsAddr == "" {
				return nil
			}
			return serveMetrics(cmd.Context(), cmd.OutOrStdout(), metricsAddr, reg)
		},
	}

	cmd.Flags().IntVar(&cfg.elements, "elements", 1<<20, "Elements per tensor")
	cmd.Flags().IntVar(&cfg.iterations, "iterations", 100, "Number of evaluations")
	cmd.Flags().IntVar(&cfg.threads, "threads", 0, "Threads per node (<= 0 for one per CPU)")
	cmd.Flags().IntVar(&cfg.minChunk, "min-chunk", 0, "Smallest per-thread chunk in elements")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address after the run")
	return cmd
}

// runBench evaluates (a+b)*(a-b) + sqr(a) repeatedly and reports throughput.
func runBench(ctx context.Context, w io.Writer, cfg benchConfig, reg prometheus.Registerer) error {
	log := klog.FromContext(ctx)

	const nodes = 7
	capacity := tensor.Estimate{
		Tensors: nodes,
		Data:    nodes * tensor.DataSize(tensor.Float32, cfg.elements),
		Graph:   graph.Overhead(nodes),
		Margin:  1024,
	}.Capacity()

	tc, err := tensor.NewContext(capacity)
	if err != nil {
		return fmt.Errorf("creating context: %w", err)
	}
	defer tc.Close()

	a, err := tc.NewTensor1D(tensor.Float32, cfg.elements)
	if err != nil {
		return err
	}
	b, err := tc.NewTensor1D(tensor.Float32, cfg.elements)
	if err != nil {
		return err
	}
	av, err := tc.Float32(a)
	if err != nil {
		return err
	}
	bv, err := tc.Float32(b)
	if err != nil {
		return err
	}
	for i := range av {
		av[i] = float32(i%1000) / 10
		bv[i] = float32(i%7) + 1
	}

	s, err := tc.Add(a, b)
	if err != nil {
		return err
	}
	d, err := tc.Sub(a, b)
	if err != nil {
		return err
	}
	p, err := tc.Mul(s, d)
	if err != nil {
		return err
	}
	q, err := tc.Sqr(a)
	if err != nil {
		return err
	}
	out, err := tc.Add(p, q)
	if err != nil {
		return err
	}

	g, err := graph.NewWithSize(tc, nodes)
	if err != nil {
		return err
	}
	if err := g.Expand(out); err != nil {
		return err
	}

	ev := graph.NewEvaluator(
		graph.WithMetrics(graph.NewMetrics(reg)),
		graph.WithMinChunkSize(cfg.minChunk),
	)

	log.V(1).Info("Starting benchmark", "elements", cfg.elements, "iterations", cfg.iterations, "threads", cfg.threads, "arena", tc.Arena().String())

	start := time.Now()
	for range cfg.iterations {
		if err := ev.Compute(ctx, g, cfg.threads); err != nil {
			return fmt.Errorf("computing graph: %w", err)
		}
	}
	elapsed := time.Since(start)

	// Each operator node reads its operands and writes its output.
	touched := uint64(cfg.iterations) * uint64(len(g.Nodes())) * 3 * uint64(tensor.DataSize(tensor.Float32, cfg.elements)) //nolint:gosec // non-negative
	perSecond := uint64(float64(touched) / elapsed.Seconds())

	fmt.Fprintf(w, "nodes:       %d (%d operators)\n", g.Len(), len(g.Nodes()))
	fmt.Fprintf(w, "iterations:  %d\n", cfg.iterations)
	fmt.Fprintf(w, "elapsed:     %s\n", elapsed)
	fmt.Fprintf(w, "per graph:   %s\n", elapsed/time.Duration(cfg.iterations))
	fmt.Fprintf(w, "throughput:  %s/s\n", humanize.IBytes(perSecond))
	return nil
}

func serveMetrics(ctx context.Context, w io.Writer, addr string, gatherer prometheus.Gatherer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(w, "serving metrics on http://%s/metrics\n", lis.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
