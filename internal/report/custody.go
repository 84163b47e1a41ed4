// Пакет report — PDF-отчёт о цепочке хранения улики.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// CustodyData — данные отчёта.
type CustodyData struct {
	Evidence       *model.Evidence
	Files          []*model.EvidenceFile
	CustodyEvents  []*model.CustodyEvent
	AccessRequests []*model.AccessRequest
	GeneratedBy    string
	GeneratedAt    time.Time
}

// Custody формирует PDF-отчёт: сводка улики, хеши файлов,
// цепочка передач и запросы доступа.
func Custody(d CustodyData) ([]byte, error) {
	e := d.Evidence
	if e == nil {
		return nil, fmt.Errorf("отчёт без улики")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("BlockEvidence - Chain of Custody Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "Chain of Custody Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, "Generated at: "+fmtTime(d.GeneratedAt), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated by: "+safeText(d.GeneratedBy), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, "1. Evidence")
	kv(pdf, "Evidence ID", e.ID)
	kv(pdf, "Case ID", e.CaseID.ValueOrZero())
	kv(pdf, "Type", e.Type)
	kv(pdf, "Status", e.Status)
	kv(pdf, "Description", e.Description)
	kv(pdf, "Location", e.Location)
	kv(pdf, "Collected", fmtTime(e.CollectionDate))
	if e.CollectedBy != nil {
		kv(pdf, "Collected By", e.CollectedBy.FullName)
	}
	if e.CurrentCustodian != nil {
		kv(pdf, "Custodian", e.CurrentCustodian.FullName)
	}
	kv(pdf, "Integrity Hash", e.FileHash.ValueOrZero())
	if e.RetentionDeadline.Valid {
		kv(pdf, "Retention", fmtTime(e.RetentionDeadline.Time)+" "+e.RetentionPolicy.ValueOrZero())
	}
	pdf.Ln(2)

	sectionTitle(pdf, "2. Files")
	if len(d.Files) == 0 {
		empty(pdf)
	}
	for _, f := range d.Files {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("%s | %d bytes | %s", safeText(f.FileName), f.FileSize, fmtTime(f.UploadedAt)), "", "L", false)
		pdf.SetFont("Courier", "", 8)
		pdf.MultiCell(0, 4.5, "sha256: "+f.SHA256Hash, "", "L", false)
		pdf.Ln(1)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "3. Custody Chain")
	if len(d.CustodyEvents) == 0 {
		empty(pdf)
	}
	for i, ev := range d.CustodyEvents {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("#%d %s -> %s [%s]", i+1,
			userName(ev.FromUser), userName(ev.ToUser), strings.ToUpper(ev.Status)), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(40, 40, 40)
		pdf.MultiCell(0, 4.5, "requested: "+fmtTime(ev.CreatedAt), "", "L", false)
		if ev.ResolvedAt.Valid {
			pdf.MultiCell(0, 4.5, "resolved: "+fmtTime(ev.ResolvedAt.Time), "", "L", false)
		}
		pdf.MultiCell(0, 4.5, "reason: "+safeText(ev.Reason), "", "L", false)
		pdf.Ln(1)
	}
	pdf.Ln(2)

	sectionTitle(pdf, "4. Access Requests")
	if len(d.AccessRequests) == 0 {
		empty(pdf)
	}
	for _, ar := range d.AccessRequests {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("%s [%s] %s", userName(ar.Requester),
			strings.ToUpper(ar.Status), fmtTime(ar.CreatedAt)), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(40, 40, 40)
		pdf.MultiCell(0, 4.5, "reason: "+safeText(ar.Reason), "", "L", false)
		if ar.Reviewer != nil {
			pdf.MultiCell(0, 4.5, fmt.Sprintf("reviewed by %s: %s", userName(ar.Reviewer),
				safeText(ar.ReviewNotes.ValueOrZero())), "", "L", false)
		}
		pdf.Ln(1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("формирование PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 196, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, key, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value), "", "L", false)
}

func empty(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, "(none)", "", "L", false)
}

func userName(u *model.UserSummary) string {
	if u == nil {
		return "-"
	}
	return safeText(u.FullName)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// safeText заменяет символы вне ASCII: встроенные шрифты PDF
// их не отображают.
func safeText(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}
