package report

import (
	"fmt"
	"strings"
	"time"

	"qcaudit/domain/audit"
)

const (
	dateLayout = "2006-01-02"
	notAvail   = "N/A"
)

// SubjectFields 邮件主题要素
type SubjectFields struct {
	Customer string
	PO       string
	Style    string
	Color    string
	Date     time.Time
	Decision string
}

// Subject 形如 "{customer} - PO: {po} - Style: {style} - Color: {color} - {date} - Decision: {decision}"
func Subject(f SubjectFields) string {
	return fmt.Sprintf("%s - PO: %s - Style: %s - Color: %s - %s - Decision: %s",
		orNA(f.Customer), f.PO, f.Style, orNA(f.Color), f.Date.Format(dateLayout), orNA(f.Decision))
}

// AuditSubject 终检记录的邮件主题，判定取推导结果
func AuditSubject(rec *audit.Record) string {
	h := rec.Header
	return Subject(SubjectFields{
		Customer: h.Customer.Name,
		PO:       h.OrderNo,
		Style:    h.StyleNo,
		Color:    h.Color,
		Date:     h.InspectionDate,
		Decision: string(rec.Result()),
	})
}

// BodyFields 邮件正文要素
type BodyFields struct {
	Style    string
	PO       string
	Stage    string
	Decision string
}

// Body 固定格式的邮件正文
func Body(f BodyFields) string {
	var sb strings.Builder
	sb.WriteString("Dear Team,\n\n")
	sb.WriteString("Please find attached the sample evaluation report against the titled style.\n\n")
	fmt.Fprintf(&sb, "Style: %s\n", f.Style)
	fmt.Fprintf(&sb, "PO Number: %s\n", f.PO)
	if f.Stage != "" {
		fmt.Fprintf(&sb, "Stage: %s\n", f.Stage)
	}
	fmt.Fprintf(&sb, "Decision: %s\n\n", orNA(f.Decision))
	sb.WriteString("Thank you.")
	return sb.String()
}

// FileName 终检报告附件名 FIR_{orderNo}_{styleNo}.pdf
func FileName(rec *audit.Record) string {
	return fmt.Sprintf("FIR_%s_%s.pdf", safeName(rec.Header.OrderNo), safeName(rec.Header.StyleNo))
}

// DevelopmentFileName 开发阶段报告附件名 {style}_{po}_Report.pdf
func DevelopmentFileName(style, po string) string {
	return fmt.Sprintf("%s_%s_Report.pdf", safeName(style), safeName(po))
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvail
	}
	return s
}

// safeName 去掉文件名中的路径分隔符
func safeName(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-").Replace(strings.TrimSpace(s))
}
