package services

import (
	"context"
	"fmt"
	"io"
	"log"

	"zero-olympiad/config"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

// exportPageSize is the leaderboard page size used while building a workbook.
const exportPageSize = maxPageSize

var exportHeader = []any{
	"Rank", "Participant ID", "Name", "Institution", "District",
	"Score", "Quiz Score", "Jury Score", "Carried Score", "Time Taken (s)", "Status", "Promoted",
}

type ExportService struct {
	Leaderboard *LeaderboardService
	Catalog     *config.Catalog
}

func NewExportService(leaderboard *LeaderboardService, catalog *config.Catalog) *ExportService {
	return &ExportService{Leaderboard: leaderboard, Catalog: catalog}
}

// SheetName is the worksheet title used for a category.
func SheetName(category int) string {
	return fmt.Sprintf("SDG %d", category)
}

// WriteRoundWorkbook writes an XLSX with one ranked sheet per category.
func (s *ExportService) WriteRoundWorkbook(ctx context.Context, round int, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("⚠️ [EXPORT] close workbook: %v", err)
		}
	}()

	first := f.GetSheetName(f.GetActiveSheetIndex())
	for i, cat := range s.Catalog.Categories {
		sheet := SheetName(cat.Number)
		if i == 0 {
			if err := f.SetSheetName(first, sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		if err := s.writeCategory(ctx, f, sheet, round, cat.Number); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func (s *ExportService) writeCategory(ctx context.Context, f *excelize.File, sheet string, round, category int) error {
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return err
	}
	row := 2
	for page := 1; ; page++ {
		cat := category
		res, err := s.Leaderboard.Page(ctx, LeaderboardQuery{Round: round, Category: &cat, Page: page, PageSize: exportPageSize})
		if err != nil {
			return err
		}
		for _, e := range res.Rows {
			axis, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			var elapsed any
			if e.ElapsedSeconds != nil {
				elapsed = *e.ElapsedSeconds
			}
			cells := []any{
				e.Rank, e.ParticipantID, e.Name, e.Institution, e.District,
				e.Score, e.QuizScore, e.JudgeScore, e.CarriedScore, elapsed, e.Status, e.IsPromoted,
			}
			if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
				return err
			}
			row++
		}
		if int64(page*exportPageSize) >= res.TotalCount {
			return nil
		}
	}
}

// ExportLeaderboard handles GET /admin/leaderboard/export?round=N.
func (s *ExportService) ExportLeaderboard(c *fiber.Ctx) error {
	round := c.QueryInt("round", 1)
	if round < 1 || round > s.Catalog.Rounds {
		return writeError(c, validationf("round must be between 1 and %d", s.Catalog.Rounds))
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="round_%d_results.xlsx"`, round))
	if err := s.WriteRoundWorkbook(c.UserContext(), round, c.Response().BodyWriter()); err != nil {
		c.Response().ResetBody()
		c.Response().Header.Del(fiber.HeaderContentDisposition)
		return writeError(c, err)
	}
	return nil
}
