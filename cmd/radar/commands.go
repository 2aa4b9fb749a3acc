package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelkehle/opportunity-radar/internal/alerts"
	"github.com/joelkehle/opportunity-radar/internal/app"
	"github.com/joelkehle/opportunity-radar/internal/model"
	"github.com/joelkehle/opportunity-radar/internal/report"
	"github.com/joelkehle/opportunity-radar/internal/scheduler"
	"github.com/joelkehle/opportunity-radar/internal/synthesis"
)

func collectCmd(g *globals) *cobra.Command {
	var category, name string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collectors and store raw signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			if name != "" {
				n, err := a.CollectOne(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %d signals\n", name, n)
				return nil
			}
			counts, err := a.Collect(cmd.Context(), category)
			names := make([]string, 0, len(counts))
			for n := range counts {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				status := fmt.Sprintf("%d signals", counts[n])
				if counts[n] < 0 {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", n, status)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only run collectors of this category (builder, demand, trend, competition)")
	cmd.Flags().StringVar(&name, "collector", "", "Run only the named collector")
	return cmd
}

func processCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Enrich unprocessed raw signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			sum, err := a.Process(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum signals to process (0 uses the configured limit)")
	return cmd
}

func reprocessCmd(g *globals) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-enrich processed signals from the trailing days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			sum, err := a.Reprocess(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Window to reprocess")
	return cmd
}

func detectCmd(g *globals) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect patterns across processed signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			res, err := a.Detect(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printPatterns(cmd, res.Patterns)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Window to analyse (0 uses the configured window)")
	return cmd
}

func anomaliesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "anomalies",
		Short: "Run the recent velocity anomaly pass and refresh alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			res, err := a.Anomalies(cmd.Context())
			if err != nil {
				return err
			}
			return printPatterns(cmd, res.Patterns)
		},
	}
}

func printPatterns(cmd *cobra.Command, pats []model.Pattern) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d patterns\n", len(pats))
	for _, p := range pats {
		fmt.Fprintf(out, "%-12s %.2f  %s\n", p.PatternType, p.OpportunityScore, p.Title)
	}
	return nil
}

func generateCmd(g *globals) *cobra.Command {
	var minScore float64
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate opportunities from new patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			res, err := a.Generate(cmd.Context(), minScore)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d opportunities from %d patterns (%d skipped, %d failed)\n",
				len(res.Opportunities), res.Considered, len(res.Skipped), len(res.Errors))
			for _, o := range res.Opportunities {
				fmt.Fprintf(out, "%-14s %s\n", o.Verdict, o.Title)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum pattern opportunity score (0 uses the configured minimum)")
	return cmd
}

func digestCmd(g *globals) *cobra.Command {
	var period string
	var out app.Output
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build the weekly or monthly digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := synthesis.Period(period)
			if p != synthesis.Weekly && p != synthesis.Monthly {
				return fmt.Errorf("--period %q: want weekly or monthly", period)
			}
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			d, err := a.Digest(cmd.Context(), p, out)
			if d != nil && out.Markdown == "" {
				fmt.Fprint(cmd.OutOrStdout(), report.Digest(d))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&period, "period", string(synthesis.Weekly), "Digest period (weekly, monthly)")
	cmd.Flags().StringVar(&out.Markdown, "out", "", "Write the markdown report to this file")
	cmd.Flags().StringVar(&out.PDF, "pdf", "", "Render the report to this PDF file")
	return cmd
}

func quarterlyCmd(g *globals) *cobra.Command {
	var out app.Output
	cmd := &cobra.Command{
		Use:   "quarterly",
		Short: "Build the quarterly synthesis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			q, err := a.Quarterly(cmd.Context(), out)
			if q != nil && out.Markdown == "" {
				fmt.Fprint(cmd.OutOrStdout(), report.Quarterly(q))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&out.Markdown, "out", "", "Write the markdown report to this file")
	cmd.Flags().StringVar(&out.PDF, "pdf", "", "Render the report to this PDF file")
	return cmd
}

func alertsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Check for velocity spikes, new patterns and market shifts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			found, err := a.CheckAlerts(cmd.Context())
			if err != nil {
				return err
			}
			notes := make([]alerts.Notification, 0, len(found))
			for _, al := range found {
				notes = append(notes, alerts.Format(al))
			}
			return printJSON(cmd.OutOrStdout(), notes)
		},
	}
}

func serveCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, log, done, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer done()
			if addr == "" {
				addr = a.Config().Server.Addr
			}
			a.WarmVelocity(ctx)
			if _, err := a.CheckAlerts(ctx); err != nil {
				log.WithError(err).Warn("initial alert check failed")
			}
			return serve(ctx, addr, a.Handler(), log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func scheduleCmd(g *globals) *cobra.Command {
	var withAPI bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the recurring jobs until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, log, done, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer done()
			s := scheduler.New(log.WithField("component", "scheduler"), scheduler.WithResult(a.Metrics.ObserveJob))
			if err := a.Schedule(s); err != nil {
				return err
			}
			if withAPI {
				a.WarmVelocity(ctx)
				go func() {
					if err := serve(ctx, a.Config().Server.Addr, a.Handler(), log); err != nil {
						log.WithError(err).Error("api server stopped")
					}
				}()
			}
			s.Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withAPI, "api", false, "Also serve the HTTP API")
	return cmd
}

func onceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Collect, process, detect and generate in one pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, done, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			sum, err := a.Once(cmd.Context())
			out := cmd.OutOrStdout()
			collected := 0
			for _, n := range sum.Collected {
				if n > 0 {
					collected += n
				}
			}
			fmt.Fprintf(out, "collected:     %d\n", collected)
			fmt.Fprintf(out, "processed:     %d (%d disqualified, %d failed)\n",
				sum.Processing.Processed, sum.Processing.Disqualified, sum.Processing.Failed)
			fmt.Fprintf(out, "patterns:      %d\n", sum.Patterns)
			fmt.Fprintf(out, "opportunities: %d\n", sum.Opportunities)
			return err
		},
	}
}

func serve(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
