package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"qcaudit/domain/development"
	"qcaudit/report"
	"qcaudit/tolerance"
)

// devSheet 开发检验单输入，测量行可由模板生成后按 POM 名称填入读数
type devSheet struct {
	Style        string                  `json:"style"`
	PONumber     string                  `json:"po_number"`
	Color        string                  `json:"color"`
	Stage        string                  `json:"stage"`
	Decision     string                  `json:"decision"`
	Customer     development.CustomerRef `json:"customer"`
	CreatedBy    string                  `json:"created_by"`
	CreatedAt    time.Time               `json:"created_at"`
	Template     *devTemplate            `json:"template,omitempty"`
	Measurements []tolerance.Row         `json:"measurements"`
}

type devTemplate struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	POMs []development.POM `json:"poms"`
}

func (s devSheet) inspection(now time.Time) (*development.Inspection, error) {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	in, err := development.NewInspection(s.Style, development.Stage(s.Stage), s.CreatedBy, createdAt)
	if err != nil {
		return nil, err
	}
	in.PONumber = s.PONumber
	in.Color = s.Color
	in.Customer = s.Customer
	if err := in.Decide(development.Decision(s.Decision)); err != nil {
		return nil, err
	}

	if s.Template == nil {
		in.SetMeasurements(s.Measurements)
		return in, nil
	}
	tmpl, err := development.NewTemplate(s.Template.ID, s.Template.Name, s.Template.POMs)
	if err != nil {
		return nil, err
	}
	tmpl.Apply(in)
	fillReadings(in, s.Measurements)
	return in, nil
}

// fillReadings 把输入读数写入模板生成的同名测量行；模板中没有的 POM 追加在末尾
func fillReadings(in *development.Inspection, rows []tolerance.Row) {
	byPOM := make(map[string]int, len(in.Measurements))
	for i, m := range in.Measurements {
		byPOM[m.POM] = i
	}
	for _, r := range rows {
		i, ok := byPOM[r.POM]
		if !ok {
			in.Measurements = append(in.Measurements, development.NewMeasurement(r))
			continue
		}
		m := &in.Measurements[i]
		m.Readings = r.Readings
		if r.Std.Valid {
			m.Std = r.Std
		}
		if r.Tol.Valid {
			m.Tol = r.Tol
		}
		if r.SizeName != "" {
			m.SizeName = r.SizeName
		}
		m.Regrade()
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newDevCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development stage sample inspections",
	}
	cmd.AddCommand(newDevGradeCmd(opts), newDevSummaryCmd(opts))
	return cmd
}

type devGradeOutput struct {
	FileName   string                  `json:"file_name"`
	Failed     bool                    `json:"failed"`
	Inspection *development.Inspection `json:"inspection"`
}

func newDevGradeCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		mail bool
	)
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade one development inspection sheet against its tolerances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var sheet devSheet
			if err := json.Unmarshal(raw, &sheet); err != nil {
				return fmt.Errorf("decode inspection sheet: %w", err)
			}
			in, err := sheet.inspection(time.Now())
			if err != nil {
				return err
			}

			out := devGradeOutput{
				FileName:   report.DevelopmentFileName(in.Style, in.PONumber),
				Failed:     in.Failed(),
				Inspection: in,
			}
			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, out)
			}
			fmt.Fprintf(w, "Style:  %s\n", in.Style)
			fmt.Fprintf(w, "PO:     %s\n", in.PONumber)
			fmt.Fprintf(w, "Stage:  %s\n", in.Stage)
			fmt.Fprintf(w, "Report: %s\n", out.FileName)

			header := []any{"POM", "STD", "TOL"}
			for i := 1; i <= tolerance.ReadingsPerRow; i++ {
				header = append(header, fmt.Sprintf("S%d", i))
			}
			t := newTable(w, append(header, "STATUS")...)
			for _, m := range in.Measurements {
				g := tolerance.EvaluateRow(m.Row)
				row := []any{m.POM, cell(m.Std), cell(m.Tol)}
				for i, v := range m.Readings {
					c := cell(v)
					if g.Cells[i] == tolerance.OutOfTolerance {
						c += "*"
					}
					row = append(row, c)
				}
				t.row(append(row, m.Status)...)
			}
			if err := t.flush(); err != nil {
				return err
			}
			result := development.StatusOK
			if out.Failed {
				result = development.StatusFail
			}
			fmt.Fprintf(w, "Result: %s\n", result)

			if mail {
				fmt.Fprintln(w)
				fmt.Fprintln(w, report.Body(report.BodyFields{
					Style:    in.Style,
					PO:       in.PONumber,
					Stage:    string(in.Stage),
					Decision: string(in.Decision),
				}))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "inspection sheet JSON file, - for stdin")
	f.BoolVar(&mail, "mail", false, "also print the notification mail body")
	return cmd
}

func cell(v decimal.NullDecimal) string {
	if !v.Valid {
		return "-"
	}
	return v.Decimal.String()
}

func newDevSummaryCmd(opts *rootOptions) *cobra.Command {
	var (
		file              string
		stages, decisions []string
		customer, search  string
		fromDay, toDay    string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Filter development inspection sheets and print dashboard stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var sheets []devSheet
			if err := json.Unmarshal(raw, &sheets); err != nil {
				return fmt.Errorf("decode inspection sheets: %w", err)
			}

			filter := development.Filter{CustomerID: customer, Search: search}
			for _, s := range stages {
				st, err := development.ParseStage(s)
				if err != nil {
					return err
				}
				filter.Stages = append(filter.Stages, st)
			}
			for _, d := range decisions {
				dec, err := development.ParseDecision(d)
				if err != nil {
					return err
				}
				filter.Decisions = append(filter.Decisions, dec)
			}
			if filter.From, err = parseDay(fromDay); err != nil {
				return err
			}
			if filter.To, err = parseDay(toDay); err != nil {
				return err
			}

			now := time.Now()
			list := make([]*development.Inspection, 0, len(sheets))
			for i, s := range sheets {
				in, err := s.inspection(now)
				if err != nil {
					return fmt.Errorf("sheet %d: %w", i+1, err)
				}
				list = append(list, in)
			}
			dash := development.Summarize(filter.Apply(list))

			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, dash)
			}
			fmt.Fprintf(w, "Total:     %d\n", dash.Total)
			fmt.Fprintf(w, "Accepted:  %d\n", dash.Passed)
			fmt.Fprintf(w, "Rejected:  %d\n", dash.Failed)
			fmt.Fprintf(w, "Pass rate: %s%%\n", dash.PassRate.StringFixed(1))
			t := newTable(w, "STYLE", "PO", "STAGE", "DECISION", "MEASURE", "CREATED")
			for _, in := range dash.Recent {
				measure := development.StatusOK
				if in.Failed() {
					measure = development.StatusFail
				}
				t.row(in.Style, in.PONumber, in.Stage, orDash(string(in.Decision)), measure, in.CreatedAt.Format(dayLayout))
			}
			return t.flush()
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "JSON array of inspection sheets, - for stdin")
	f.StringSliceVar(&stages, "stage", nil, "filter by stage (repeatable)")
	f.StringSliceVar(&decisions, "decision", nil, "filter by decision (repeatable)")
	f.StringVar(&customer, "customer", "", "filter by customer id")
	f.StringVar(&search, "search", "", "search style, PO, customer name and creator")
	f.StringVar(&fromDay, "from", "", "created on or after (YYYY-MM-DD)")
	f.StringVar(&toDay, "to", "", "created on or before (YYYY-MM-DD)")
	return cmd
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
