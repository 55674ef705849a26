package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"qcaudit/app"
	"qcaudit/domain/audit"
	"qcaudit/domain/repository"
	"qcaudit/report"
	"qcaudit/sampling"
)

const dayLayout = "2006-01-02"

// withApp 在命令内装配完整运行时，命令结束即关闭
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a := app.New(opts.configPath, app.WithLogOutput(cmd.ErrOrStderr()))
	if err := a.Setup(ctx); err != nil {
		return err
	}
	err := fn(ctx, a)
	if cerr := a.Shutdown(ctx); err == nil {
		err = cerr
	}
	return err
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		h        audit.Header
		customer string
		date     string
		in       audit.Inputs
		standard string
		attempt  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a final inspection record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h.Customer = audit.Customer{ID: customer, Name: customer}
			if date != "" {
				d, err := time.Parse(dayLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				h.InspectionDate = d
			} else {
				h.InspectionDate = time.Now().UTC().Truncate(24 * time.Hour)
			}
			in.Standard = sampling.Standard(standard)
			in.Attempt = audit.Attempt(attempt)
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				rec, err := a.Service.Create(ctx, h, in)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), opts, rec)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&h.OrderNo, "order", "", "order number")
	f.StringVar(&h.StyleNo, "style", "", "style number")
	f.StringVar(&h.Color, "color", "", "color")
	f.StringVar(&h.Supplier, "supplier", "", "supplier")
	f.StringVar(&h.Factory, "factory", "", "factory")
	f.StringVar(&h.CreatedBy, "by", "", "inspector")
	f.StringVar(&customer, "customer", "", "customer name")
	f.StringVar(&date, "date", "", "inspection date (YYYY-MM-DD)")
	f.IntVar(&in.TotalOrderQty, "qty", 0, "total order quantity")
	f.IntVar(&in.PresentedQty, "presented", 0, "presented quantity")
	f.IntVar(&in.SampleSizeOverride, "sample-size", 0, "manual sample size")
	f.StringVar(&standard, "standard", string(sampling.StandardNormal), "AQL standard: standard, strict")
	f.StringVar(&attempt, "attempt", string(audit.FirstAttempt), "inspection attempt: 1st, 2nd, 3rd")
	return cmd
}

func newAddDefectCmd(opts *rootOptions) *cobra.Command {
	var (
		id          int64
		description string
		severity    string
		count       int
		photo       string
	)
	cmd := &cobra.Command{
		Use:   "add-defect",
		Short: "Record a defect against an inspection and re-derive the verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sev, err := audit.ParseSeverity(severity)
			if err != nil {
				return err
			}
			e, err := audit.NewDefectEntry(description, sev, count, photo)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				rec, _, err := a.Service.AddDefect(ctx, id, e)
				if err != nil {
					return err
				}
				return printRecord(cmd.OutOrStdout(), opts, rec)
			})
		},
	}
	f := cmd.Flags()
	f.Int64Var(&id, "id", 0, "record id")
	f.StringVar(&description, "desc", "", "defect description")
	f.StringVar(&severity, "severity", string(audit.Minor), "Critical, Major or Minor")
	f.IntVar(&count, "count", 1, "defect count")
	f.StringVar(&photo, "photo", "", "photo reference")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		f        repository.Filter
		results  []string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspection records, newest inspection date first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, r := range results {
				f.Results = append(f.Results, audit.Result(r))
			}
			var err error
			if f.From, err = parseDay(from); err != nil {
				return err
			}
			if f.To, err = parseDay(to); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				recs, err := a.Service.List(ctx, f)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if opts.format == formatJSON {
					views := make([]report.View, 0, len(recs))
					for _, r := range recs {
						views = append(views, report.Build(r))
					}
					return writeJSON(w, views)
				}
				t := newTable(w, "ID", "DATE", "ORDER", "STYLE", "CUSTOMER", "SAMPLE", "FOUND", "RESULT")
				for _, r := range recs {
					d := r.Derived()
					t.row(r.ID, r.Header.InspectionDate.Format(dayLayout), r.Header.OrderNo, r.Header.StyleNo,
						r.Header.Customer.Name, d.SampleSize, d.Found.String(), r.Result())
				}
				return t.flush()
			})
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&results, "result", nil, "filter by result (Pass, Fail, Pending)")
	fl.StringVar(&f.CustomerID, "customer", "", "filter by customer id")
	fl.StringVar(&f.Search, "search", "", "search order, style, customer and inspector")
	fl.StringVar(&from, "from", "", "inspection date from (YYYY-MM-DD)")
	fl.StringVar(&to, "to", "", "inspection date to (YYYY-MM-DD)")
	fl.IntVar(&f.Limit, "limit", 50, "page size")
	fl.IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show pass rate and the most recent inspections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				recs, err := a.Service.List(ctx, repository.Filter{})
				if err != nil {
					return err
				}
				d := report.Summarize(recs)
				w := cmd.OutOrStdout()
				if opts.format == formatJSON {
					return writeJSON(w, d)
				}
				fmt.Fprintf(w, "Total %d  Pass %d  Fail %d  Pending %d  Pass rate %s%%\n",
					d.Total, d.PassCount, d.FailCount, d.Pending, d.PassRate.StringFixed(1))
				t := newTable(w, "ID", "ORDER", "STYLE", "CUSTOMER", "RESULT")
				for _, r := range d.Recent {
					t.row(r.ID, r.OrderNo, r.StyleNo, r.CustomerName, r.Result)
				}
				return t.flush()
			})
		},
	}
}

func printRecord(w io.Writer, opts *rootOptions, rec *audit.Record) error {
	v := report.Build(rec)
	if opts.format == formatJSON {
		return writeJSON(w, v)
	}
	d := v.Derived
	fmt.Fprintf(w, "Record %d  %s  (%s)\n", v.RecordID, v.FileName, v.StandardLabel())
	fmt.Fprintf(w, "Sample size %d  Found %s  Decision %s\n", d.SampleSize, d.Found.String(), v.Decision)
	t := newTable(w, "SEVERITY", "AQL", "MAX", "FOUND", "")
	for _, l := range v.LimitSummary() {
		mark := ""
		if l.Exceeded() {
			mark = "exceeded"
		}
		t.row(l.Severity, l.AQL, l.MaxAllowed, l.Found, mark)
	}
	return t.flush()
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
