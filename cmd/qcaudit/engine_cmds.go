package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"qcaudit/domain/audit"
	"qcaudit/sampling"
)

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var (
		qty                    int
		standard               string
		critical, major, minor int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute sample size, limits and verdict without storing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := audit.ComputeAudit(qty, standard, critical, major, minor)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, p)
			}
			fmt.Fprintf(w, "Standard:    %s\n", p.StandardUsed)
			fmt.Fprintf(w, "Sample size: %d\n", p.SampleSize)
			t := newTable(w, "SEVERITY", "AQL", "MAX", "FOUND")
			t.row(audit.Critical, p.Levels.Critical, p.Limits.Critical, critical)
			t.row(audit.Major, p.Levels.Major, p.Limits.Major, major)
			t.row(audit.Minor, p.Levels.Minor, p.Limits.Minor, minor)
			if err := t.flush(); err != nil {
				return err
			}
			if len(p.LimitMisses) > 0 {
				fmt.Fprintf(w, "Untabulated limits treated as 0: %v\n", p.LimitMisses)
			}
			fmt.Fprintf(w, "Result:      %s\n", p.Result)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&qty, "qty", "q", 0, "lot quantity")
	f.StringVarP(&standard, "standard", "s", string(sampling.StandardNormal), "AQL standard: standard, strict")
	f.IntVar(&critical, "critical", 0, "critical defects found")
	f.IntVar(&major, "major", 0, "major defects found")
	f.IntVar(&minor, "minor", 0, "minor defects found")
	return cmd
}

type tablesOutput struct {
	LotRanges []sampling.LotRange `json:"lot_ranges"`
	Limits    map[string][]int    `json:"limits"`
	Sizes     []int               `json:"sample_sizes"`
}

func newTablesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the sample size and acceptance number tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			aqls := sampling.TabulatedAQLs()
			out := tablesOutput{
				LotRanges: sampling.LotRanges(),
				Limits:    make(map[string][]int, len(aqls)),
				Sizes:     sampling.SampleSizes[:],
			}
			for _, aql := range aqls {
				col := make([]int, 0, len(out.Sizes))
				for _, n := range out.Sizes {
					col = append(col, sampling.MaxAllowed(n, aql))
				}
				out.Limits[aql.String()] = col
			}

			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, out)
			}
			t := newTable(w, "LOT FROM", "LOT TO", "SAMPLE")
			for _, r := range out.LotRanges {
				to := "+"
				if r.To > 0 {
					to = strconv.Itoa(r.To)
				}
				t.row(r.From, to, r.SampleSize)
			}
			if err := t.flush(); err != nil {
				return err
			}
			fmt.Fprintln(w)

			header := []any{"SAMPLE"}
			for _, aql := range aqls {
				header = append(header, "AQL "+aql.String())
			}
			t = newTable(w, header...)
			for i, n := range out.Sizes {
				row := []any{n}
				for _, aql := range aqls {
					row = append(row, out.Limits[aql.String()][i])
				}
				t.row(row...)
			}
			return t.flush()
		},
	}
}

func newCheckSizeCmd(opts *rootOptions) *cobra.Command {
	var (
		size            string
		ordered, packed int
	)
	cmd := &cobra.Command{
		Use:   "check-size",
		Short: "Compare ordered and packed quantity for one size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := audit.NewSizeCheck(size, ordered, packed)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, map[string]any{
					"size":              sc.Size,
					"order_qty":         sc.OrderedQty,
					"packed_qty":        sc.PackedQty,
					"difference":        sc.Difference(),
					"deviation_percent": sc.DeviationPercent(),
				})
			}
			fmt.Fprintf(w, "%s: ordered %d, packed %d, difference %+d (%s%%)\n",
				sc.Size, sc.OrderedQty, sc.PackedQty, sc.Difference(), sc.DeviationPercent().StringFixed(2))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&size, "size", "", "size label")
	f.IntVar(&ordered, "ordered", 0, "ordered quantity")
	f.IntVar(&packed, "packed", 0, "packed quantity")
	return cmd
}
