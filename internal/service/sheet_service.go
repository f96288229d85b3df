package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/export"
	"github.com/noah-isme/face-attendance-api/pkg/storage"
)

type sheetAttendanceReader interface {
	ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error)
	ListByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceRecordDetail, error)
}

type sheetClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type sheetMetrics interface {
	ObserveSheetWrite(duration time.Duration)
}

// Rate color and tier cutoffs for the monthly matrix.
const (
	rateGreenCutoff  = 75.0
	rateYellowCutoff = 60.0
)

var tierCutoffs = []struct {
	label string
	min   float64
}{
	{"Excellent (>= 90%)", 90},
	{"Good (75% - 89%)", 75},
	{"Fair (60% - 74%)", 60},
	{"Poor (40% - 59%)", 40},
	{"Critical (< 40%)", 0},
}

// SheetService renders daily sheets and monthly matrices as xlsx
// workbooks plus a PDF summary variant. Writes for the same artifact
// are serialized with a per-key mutex so concurrent marking passes
// never interleave a read-modify-write.
type SheetService struct {
	repo    sheetAttendanceReader
	classes sheetClassReader
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	pdf     *export.PDFExporter
	metrics sheetMetrics
	cfg     config.AttendanceConfig
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSheetService builds a SheetService.
func NewSheetService(
	repo sheetAttendanceReader,
	classes sheetClassReader,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	metrics sheetMetrics,
	cfg config.AttendanceConfig,
	logger *zap.Logger,
) *SheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetService{
		repo:    repo,
		classes: classes,
		store:   store,
		signer:  signer,
		pdf:     export.NewPDFExporter(),
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// DailyFilename is deterministic so repeated generations overwrite the
// same artifact instead of accumulating copies.
func DailyFilename(classID string, date time.Time) string {
	return fmt.Sprintf("daily_%s_%s.xlsx", classID, date.Format("2006-01-02"))
}

// MonthlyFilename follows the same deterministic convention.
func MonthlyFilename(classID string, year int, month time.Month) string {
	return fmt.Sprintf("monthly_%s_%04d-%02d.xlsx", classID, year, int(month))
}

func (s *SheetService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[key] == nil {
		s.locks[key] = &sync.Mutex{}
	}
	return s.locks[key]
}

// GenerateDailySheet rebuilds the daily attendance workbook for a
// class day from the database. Rebuilding from the source of truth
// under the artifact lock keeps the sheet consistent with the store
// no matter how many marking passes raced before this call.
func (s *SheetService) GenerateDailySheet(ctx context.Context, classID string, date time.Time) (*models.ReportFile, error) {
	filename := DailyFilename(classID, date)
	lock := s.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()
	return s.generateDailySheetLocked(ctx, classID, date, filename)
}

// generateDailySheetLocked renders and persists the workbook. The
// caller must hold the artifact lock for filename.
func (s *SheetService) generateDailySheetLocked(ctx context.Context, classID string, date time.Time, filename string) (*models.ReportFile, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	records, err := s.repo.ListByClassDate(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	byStudent := make(map[string]models.AttendanceRecordDetail, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	title := fmt.Sprintf("Daily Attendance - %s - %s", class.Name, date.Format("2006-01-02"))
	f.SetCellValue(sheet, "A1", title)
	f.MergeCell(sheet, "A1", "H1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	f.SetCellStyle(sheet, "A1", "H1", titleStyle)

	headers := []string{"No", "Student Code", "Name", "Status", "Method", "Marked At", "Confidence", "Signature"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheet, cell, header)
	}
	f.SetCellStyle(sheet, "A2", "H2", headerStyle)
	f.SetColWidth(sheet, "B", "C", 22)
	f.SetColWidth(sheet, "D", "G", 14)
	f.SetColWidth(sheet, "H", "H", 18)

	greenStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1}})
	yellowStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"FFEB9C"}, Pattern: 1}})
	redStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1}})
	blueStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"BDD7EE"}, Pattern: 1}})
	statusStyles := map[models.AttendanceStatus]int{
		models.AttendanceStatusPresent: greenStyle,
		models.AttendanceStatusLate:    yellowStyle,
		models.AttendanceStatusExcused: blueStyle,
		models.AttendanceStatusAbsent:  redStyle,
	}

	present, late, excused := 0, 0, 0
	for i, entry := range roster {
		row := i + 3
		status := models.AttendanceStatusAbsent
		method := ""
		markedAt := ""
		confidence := ""
		if rec, ok := byStudent[entry.StudentID]; ok {
			status = rec.Status
			method = string(rec.Method)
			markedAt = rec.MarkedAt.Format("15:04:05")
			if rec.Confidence != nil {
				confidence = fmt.Sprintf("%.2f", *rec.Confidence)
			}
			switch rec.Status {
			case models.AttendanceStatusPresent:
				present++
			case models.AttendanceStatusLate:
				late++
			case models.AttendanceStatusExcused:
				excused++
			}
		}
		values := []interface{}{i + 1, entry.StudentCode, entry.StudentName, string(status), method, markedAt, confidence, ""}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheet, cell, value)
		}
		statusCell := mustCell(4, row)
		f.SetCellStyle(sheet, statusCell, statusCell, statusStyles[status])
	}

	absent := len(roster) - present - late - excused
	if absent < 0 {
		absent = 0
	}
	summaryRow := len(roster) + 4
	rate := 0.0
	if len(roster) > 0 {
		rate = float64(present+late) / float64(len(roster)) * 100
	}
	summary := []string{
		fmt.Sprintf("Present: %d", present),
		fmt.Sprintf("Late: %d", late),
		fmt.Sprintf("Excused: %d", excused),
		fmt.Sprintf("Absent: %d", absent),
		fmt.Sprintf("Attendance Rate: %.1f%%", rate),
	}
	for i, line := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		f.SetCellValue(sheet, cell, line)
	}
	rateCell := mustCell(1, summaryRow+len(summary)-1)
	switch {
	case rate >= rateGreenCutoff:
		f.SetCellStyle(sheet, rateCell, rateCell, greenStyle)
	case rate >= rateYellowCutoff:
		f.SetCellStyle(sheet, rateCell, rateCell, yellowStyle)
	default:
		f.SetCellStyle(sheet, rateCell, rateCell, redStyle)
	}

	return s.persist(f, filename, models.ReportKindDaily)
}

// GenerateMonthlyReport renders the per-student day matrix for one
// month. Rest days are omitted from the day columns.
func (s *SheetService) GenerateMonthlyReport(ctx context.Context, classID string, year int, month time.Month) (*models.ReportFile, error) {
	filename := MonthlyFilename(classID, year, month)
	lock := s.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	records, err := s.repo.ListByClassRange(ctx, classID, first, last)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	workingDays := make([]int, 0, 26)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == s.cfg.RestDay {
			continue
		}
		workingDays = append(workingDays, day.Day())
	}

	statusByStudentDay := make(map[string]map[int]models.AttendanceStatus)
	for _, rec := range records {
		if statusByStudentDay[rec.StudentID] == nil {
			statusByStudentDay[rec.StudentID] = make(map[int]models.AttendanceStatus)
		}
		statusByStudentDay[rec.StudentID][rec.Date.Day()] = rec.Status
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	title := fmt.Sprintf("Monthly Attendance - %s - %s %d", class.Name, month.String(), year)
	lastCol, _ := excelize.CoordinatesToCellName(3+len(workingDays)+5, 1)
	f.SetCellValue(sheet, "A1", title)
	f.MergeCell(sheet, "A1", lastCol)
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	f.SetCellStyle(sheet, "A1", lastCol, titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	greenStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1}})
	yellowStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"FFEB9C"}, Pattern: 1}})
	redStyle, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1}})

	headers := []string{"No", "Student Code", "Name"}
	for _, day := range workingDays {
		headers = append(headers, fmt.Sprintf("%d", day))
	}
	headers = append(headers, "P", "L", "E", "A", "Rate")
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheet, cell, header)
	}
	headerEnd, _ := excelize.CoordinatesToCellName(len(headers), 2)
	f.SetCellStyle(sheet, "A2", headerEnd, headerStyle)
	f.SetColWidth(sheet, "B", "C", 22)

	statusLetters := map[models.AttendanceStatus]string{
		models.AttendanceStatusPresent: "P",
		models.AttendanceStatusLate:    "L",
		models.AttendanceStatusExcused: "E",
		models.AttendanceStatusAbsent:  "A",
	}

	tierCounts := make([]int, len(tierCutoffs))
	for i, entry := range roster {
		row := i + 3
		f.SetCellValue(sheet, mustCell(1, row), i+1)
		f.SetCellValue(sheet, mustCell(2, row), entry.StudentCode)
		f.SetCellValue(sheet, mustCell(3, row), entry.StudentName)

		present, late, excused := 0, 0, 0
		days := statusByStudentDay[entry.StudentID]
		for col, day := range workingDays {
			status, ok := days[day]
			if !ok {
				status = models.AttendanceStatusAbsent
			}
			switch status {
			case models.AttendanceStatusPresent:
				present++
			case models.AttendanceStatusLate:
				late++
			case models.AttendanceStatusExcused:
				excused++
			}
			f.SetCellValue(sheet, mustCell(4+col, row), statusLetters[status])
		}

		absent := len(workingDays) - present - late - excused
		if absent < 0 {
			absent = 0
		}
		rate := 0.0
		if len(workingDays) > 0 {
			rate = float64(present+late) / float64(len(workingDays)) * 100
		}

		base := 4 + len(workingDays)
		f.SetCellValue(sheet, mustCell(base, row), present)
		f.SetCellValue(sheet, mustCell(base+1, row), late)
		f.SetCellValue(sheet, mustCell(base+2, row), excused)
		f.SetCellValue(sheet, mustCell(base+3, row), absent)
		rateCell := mustCell(base+4, row)
		f.SetCellValue(sheet, rateCell, fmt.Sprintf("%.1f%%", rate))
		switch {
		case rate >= rateGreenCutoff:
			f.SetCellStyle(sheet, rateCell, rateCell, greenStyle)
		case rate >= rateYellowCutoff:
			f.SetCellStyle(sheet, rateCell, rateCell, yellowStyle)
		default:
			f.SetCellStyle(sheet, rateCell, rateCell, redStyle)
		}

		for t, tier := range tierCutoffs {
			if rate >= tier.min {
				tierCounts[t]++
				break
			}
		}
	}

	tierRow := len(roster) + 4
	f.SetCellValue(sheet, mustCell(1, tierRow), "Distribution")
	tierHeaderStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(sheet, mustCell(1, tierRow), mustCell(1, tierRow), tierHeaderStyle)
	for t, tier := range tierCutoffs {
		f.SetCellValue(sheet, mustCell(1, tierRow+1+t), tier.label)
		f.SetCellValue(sheet, mustCell(2, tierRow+1+t), tierCounts[t])
	}

	return s.persist(f, filename, models.ReportKindMonthly)
}

// DailySummaryPDF renders the class day summary as a PDF table.
func (s *SheetService) DailySummaryPDF(ctx context.Context, classID string, date time.Time) ([]byte, string, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	records, err := s.repo.ListByClassDate(ctx, classID, date)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	byStudent := make(map[string]models.AttendanceRecordDetail, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	dataset := export.Dataset{Headers: []string{"Code", "Name", "Status", "Marked At"}}
	for _, entry := range roster {
		row := map[string]string{
			"Code":      entry.StudentCode,
			"Name":      entry.StudentName,
			"Status":    string(models.AttendanceStatusAbsent),
			"Marked At": "",
		}
		if rec, ok := byStudent[entry.StudentID]; ok {
			row["Status"] = string(rec.Status)
			row["Marked At"] = rec.MarkedAt.Format("15:04:05")
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	title := fmt.Sprintf("Attendance %s %s", class.Name, date.Format("2006-01-02"))
	data, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	filename := fmt.Sprintf("daily_%s_%s.pdf", classID, date.Format("2006-01-02"))
	return data, filename, nil
}

// DailySheetBytes regenerates the daily sheet and returns its contents,
// for callers that attach the workbook instead of linking it. The
// artifact lock is held across both the write and the read so a
// concurrent regeneration cannot hand back a half-written file.
func (s *SheetService) DailySheetBytes(ctx context.Context, classID string, date time.Time) ([]byte, string, error) {
	filename := DailyFilename(classID, date)
	lock := s.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()

	report, err := s.generateDailySheetLocked(ctx, classID, date, filename)
	if err != nil {
		return nil, "", err
	}
	f, err := s.store.Open(report.Filename)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report file")
	}
	return data, report.Filename, nil
}

// ResolveToken validates a download token and resolves it to a file path.
func (s *SheetService) ResolveToken(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	if !s.store.Exists(relPath) {
		return "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return s.store.Path(relPath), nil
}

func (s *SheetService) persist(f *excelize.File, filename string, kind models.ReportKind) (*models.ReportFile, error) {
	start := time.Now()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render workbook")
	}
	if _, err := s.store.Save(filename, buf.Bytes()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store workbook")
	}

	token, _, err := s.signer.Generate(string(kind), filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	if s.metrics != nil {
		s.metrics.ObserveSheetWrite(time.Since(start))
	}
	s.logger.Info("report generated", zap.String("filename", filename), zap.String("kind", string(kind)))
	return &models.ReportFile{
		Kind:        kind,
		Filename:    filename,
		DownloadURL: "/api/v1/reports/download/" + token,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func mustCell(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}
