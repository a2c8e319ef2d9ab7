package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

// memoryRepository is an in-memory Repository with the same guarded writes
// as the database: one in_progress attempt per student and test, unique
// attempt numbers, compare-and-set transitions and one result per attempt.
type memoryRepository struct {
	mu        sync.Mutex
	tests     map[string]*models.Test
	questions map[string]*models.Question
	attempts  map[string]*models.Attempt
	results   map[string]*models.TestResult // by attempt id
	users     repositories.UserRepository

	// failure injection
	failResultCreate error
	failGetQuestions error
	failGetAttempt   error
	resultCreates    int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		tests:     map[string]*models.Test{},
		questions: map[string]*models.Question{},
		attempts:  map[string]*models.Attempt{},
		results:   map[string]*models.TestResult{},
	}
}

func (r *memoryRepository) Test() repositories.TestRepository         { return memoryTests{r} }
func (r *memoryRepository) Question() repositories.QuestionRepository { return memoryQuestions{r} }
func (r *memoryRepository) Attempt() repositories.AttemptRepository   { return memoryAttempts{r} }
func (r *memoryRepository) Result() repositories.ResultRepository     { return memoryResults{r} }
func (r *memoryRepository) User() repositories.UserRepository         { return r.users }
func (r *memoryRepository) Ping(ctx context.Context) error            { return nil }
func (r *memoryRepository) Close() error                              { return nil }

func (r *memoryRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *memoryRepository) addTest(test *models.Test) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests[test.ID] = test
}

func (r *memoryRepository) removeTest(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tests, id)
}

func (r *memoryRepository) addQuestions(questions ...*models.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range questions {
		r.questions[q.ID] = q
	}
}

func (r *memoryRepository) attempt(id string) *models.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.attempts[id]; ok {
		return cloneAttempt(a)
	}
	return nil
}

func (r *memoryRepository) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func cloneAttempt(a *models.Attempt) *models.Attempt {
	c := *a
	c.Answers = append(models.AnswerSheet(nil), a.Answers...)
	return &c
}

// ===== TESTS =====

type memoryTests struct{ r *memoryRepository }

func (m memoryTests) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	m.r.addTest(test)
	return nil
}

func (m memoryTests) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if t, ok := m.r.tests[id]; ok {
		return t, nil
	}
	return nil, repositories.ErrNotFound
}

func (m memoryTests) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Test
	for _, t := range m.r.tests {
		if filters.Status != nil && t.Status != *filters.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== QUESTIONS =====

type memoryQuestions struct{ r *memoryRepository }

func (m memoryQuestions) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	m.r.addQuestions(questions...)
	return nil
}

func (m memoryQuestions) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Question, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if m.r.failGetQuestions != nil {
		return nil, m.r.failGetQuestions
	}
	out := make(map[string]*models.Question, len(ids))
	for _, id := range ids {
		if q, ok := m.r.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

// ===== ATTEMPTS =====

type memoryAttempts struct{ r *memoryRepository }

func (m memoryAttempts) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	for _, a := range m.r.attempts {
		if a.StudentID != attempt.StudentID || a.TestID != attempt.TestID {
			continue
		}
		if a.Status == models.AttemptInProgress || a.AttemptNumber == attempt.AttemptNumber {
			return repositories.ErrDuplicate
		}
	}
	m.r.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (m memoryAttempts) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	if m.r.failGetAttempt != nil {
		return nil, m.r.failGetAttempt
	}
	if a := m.r.attempt(id); a != nil {
		return a, nil
	}
	return nil, repositories.ErrNotFound
}

func (m memoryAttempts) GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID, testID string) ([]*models.Attempt, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.r.attempts {
		if a.StudentID == studentID && a.TestID == testID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (m memoryAttempts) UpdateProgress(ctx context.Context, tx *gorm.DB, id, studentID string, progress repositories.AttemptProgress) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	a, ok := m.r.attempts[id]
	if !ok || a.StudentID != studentID || a.Status != models.AttemptInProgress {
		return repositories.ErrConditionFailed
	}
	if progress.CurrentQuestion != nil {
		a.CurrentQuestion = *progress.CurrentQuestion
	}
	if progress.Answers != nil {
		a.Answers = append(models.AnswerSheet(nil), (*progress.Answers)...)
	}
	if progress.TimeRemaining != nil {
		remaining := *progress.TimeRemaining
		a.TimeRemaining = &remaining
	}
	return nil
}

func (m memoryAttempts) Transition(ctx context.Context, tx *gorm.DB, id string, transition repositories.AttemptTransition) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	a, ok := m.r.attempts[id]
	if !ok || a.Status != models.AttemptInProgress {
		return repositories.ErrConditionFailed
	}
	at := transition.At
	a.Status = transition.To
	a.SubmittedAt = &at
	if transition.Answers != nil {
		a.Answers = append(models.AnswerSheet(nil), (*transition.Answers)...)
	}
	if transition.TimeRemaining != nil {
		remaining := *transition.TimeRemaining
		a.TimeRemaining = &remaining
	}
	return nil
}

func (m memoryAttempts) SetGrade(ctx context.Context, tx *gorm.DB, id string, score float64, passed bool, gradedAt time.Time) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	a, ok := m.r.attempts[id]
	if !ok || !a.Status.IsTerminal() || a.Score != nil {
		return repositories.ErrConditionFailed
	}
	a.Score = &score
	a.Passed = &passed
	a.GradedAt = &gradedAt
	return nil
}

func (m memoryAttempts) RecordGradingFailure(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	a, ok := m.r.attempts[id]
	if !ok || a.Score != nil {
		return repositories.ErrConditionFailed
	}
	a.GradingFailures++
	a.LastGradingErrorAt = &at
	return nil
}

func (m memoryAttempts) GetPendingGrading(ctx context.Context, tx *gorm.DB, limit int) ([]*models.Attempt, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.r.attempts {
		if a.Status.IsTerminal() && a.Score == nil {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GradingFailures != out[j].GradingFailures {
			return out[i].GradingFailures < out[j].GradingFailures
		}
		if !out[i].SubmittedAt.Equal(*out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memoryAttempts) GetOverdue(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*models.Attempt, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.r.attempts {
		if a.Status == models.AttemptInProgress && a.DeadlineAt != nil && a.DeadlineAt.Before(cutoff) {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ===== RESULTS =====

type memoryResults struct{ r *memoryRepository }

func (m memoryResults) Create(ctx context.Context, tx *gorm.DB, result *models.TestResult) error {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	m.r.resultCreates++
	if m.r.failResultCreate != nil {
		return m.r.failResultCreate
	}
	if _, exists := m.r.results[result.AttemptID]; exists {
		return repositories.ErrDuplicate
	}
	m.r.results[result.AttemptID] = result
	return nil
}

func (m memoryResults) GetByAttemptID(ctx context.Context, tx *gorm.DB, attemptID string) (*models.TestResult, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if result, ok := m.r.results[attemptID]; ok {
		return result, nil
	}
	return nil, repositories.ErrNotFound
}

func (m memoryResults) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	return m.filter(func(r *models.TestResult) bool { return r.StudentID == studentID }, filters)
}

func (m memoryResults) GetByTest(ctx context.Context, tx *gorm.DB, testID string, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	return m.filter(func(r *models.TestResult) bool { return r.TestID == testID }, filters)
}

func (m memoryResults) filter(match func(*models.TestResult) bool, filters repositories.ResultFilters) ([]*models.TestResult, int64, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	var all []*models.TestResult
	for _, result := range m.r.results {
		if !match(result) {
			continue
		}
		if filters.Passed != nil && result.Passed != *filters.Passed {
			continue
		}
		if filters.DateFrom != nil && result.GradedAt.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && result.GradedAt.After(*filters.DateTo) {
			continue
		}
		all = append(all, result)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].GradedAt.Equal(all[j].GradedAt) {
			return all[i].GradedAt.Before(all[j].GradedAt)
		}
		return all[i].AttemptID < all[j].AttemptID
	})

	total := int64(len(all))
	start := filters.Offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if filters.Limit > 0 && start+filters.Limit < end {
		end = start + filters.Limit
	}
	return all[start:end], total, nil
}

func (m memoryResults) GetTestSummary(ctx context.Context, tx *gorm.DB, testID string) (*repositories.ResultSummary, error) {
	results, _, _ := m.filter(func(r *models.TestResult) bool { return r.TestID == testID }, repositories.ResultFilters{})
	summary := &repositories.ResultSummary{TotalResults: len(results)}
	if len(results) == 0 {
		return summary, nil
	}
	var sum float64
	for _, r := range results {
		sum += r.PercentageScore
		if r.Passed {
			summary.PassedResults++
		}
	}
	summary.AveragePercentage = sum / float64(len(results))
	summary.PassRate = 100 * float64(summary.PassedResults) / float64(len(results))
	return summary, nil
}
