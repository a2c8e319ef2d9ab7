package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportPageSize  = 500

	resultsSheet = "Results"
	summarySheet = "Summary"
)

type exportService struct {
	repo   repositories.Repository
	users  repositories.UserRepository // nil without an identity provider
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, users repositories.UserRepository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

// ExportTestResults renders every result of a test as an XLSX workbook
func (s *exportService) ExportTestResults(ctx context.Context, testID, userID string, role models.UserRole) (*ExportFile, error) {
	test, err := authorizeTestRead(ctx, s.repo, testID, userID, role)
	if err != nil {
		return nil, err
	}

	results, err := s.allResults(ctx, testID)
	if err != nil {
		return nil, err
	}

	summary, err := s.repo.Result().GetTestSummary(ctx, nil, testID)
	if err != nil {
		return nil, storageError("get result summary", err)
	}

	names := s.studentNames(ctx, results)

	data, err := buildResultsWorkbook(test, results, summary, names)
	if err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}

	s.logger.Info("Exported test results", "test_id", testID, "rows", len(results), "user_id", userID)

	return &ExportFile{
		FileName:    fmt.Sprintf("results-%s-%s.xlsx", testID, time.Now().UTC().Format("20060102")),
		ContentType: xlsxContentType,
		Data:        data,
	}, nil
}

func (s *exportService) allResults(ctx context.Context, testID string) ([]*models.TestResult, error) {
	var all []*models.TestResult
	filters := repositories.ResultFilters{Limit: exportPageSize, SortBy: "graded_at", SortOrder: "asc"}
	for {
		page, total, err := s.repo.Result().GetByTest(ctx, nil, testID, filters)
		if err != nil {
			return nil, storageError("list results", err)
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			return all, nil
		}
		filters.Offset += len(page)
	}
}

func (s *exportService) studentNames(ctx context.Context, results []*models.TestResult) map[string]string {
	names := make(map[string]string)
	if s.users == nil || len(results) == 0 {
		return names
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StudentID)
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve student names", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.FullName
	}
	return names
}

func buildResultsWorkbook(test *models.Test, results []*models.TestResult, summary *repositories.ResultSummary, names map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}

	header := []interface{}{
		"Student ID", "Student Name", "Attempt ID", "Correct", "Incorrect", "Unanswered",
		"Total Questions", "Percentage", "Passed", "Time Taken (s)", "Graded At",
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, r := range results {
		var timeTaken interface{}
		if r.TimeTaken != nil {
			timeTaken = *r.TimeTaken
		}
		row := []interface{}{
			r.StudentID, names[r.StudentID], r.AttemptID, r.CorrectAnswers, r.IncorrectAnswers,
			r.UnansweredQuestions, r.TotalQuestions, r.PercentageScore, r.Passed, timeTaken,
			r.GradedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	rows := [][]interface{}{
		{"Test", test.Title},
		{"Test ID", test.ID},
		{"Passing Score", test.PassingScore},
		{"Results", summary.TotalResults},
		{"Passed", summary.PassedResults},
		{"Average Percentage", summary.AveragePercentage},
		{"Pass Rate", summary.PassRate},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
