package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
)

type requisiteRuleReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListActiveRequisites(ctx context.Context, courseID string, requisiteType models.RequisiteType) ([]models.RequisiteRule, error)
}

type requisiteAttemptsReader interface {
	ListAttemptsByStudent(ctx context.Context, studentID string) ([]models.CourseAttempt, error)
}

type gradeDefinitionReader interface {
	FindDefinitionByCode(ctx context.Context, code string) (*models.GradeDefinition, error)
}

// RequisiteService evaluates a course's prerequisite rules against a
// student's attempt record.
type RequisiteService struct {
	courses  requisiteRuleReader
	attempts requisiteAttemptsReader
	grades   gradeDefinitionReader
	logger   *zap.Logger
}

// NewRequisiteService constructs RequisiteService.
func NewRequisiteService(courses requisiteRuleReader, attempts requisiteAttemptsReader, grades gradeDefinitionReader, logger *zap.Logger) *RequisiteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisiteService{courses: courses, attempts: attempts, grades: grades, logger: logger}
}

// studentRecord indexes a student's attempts for rule evaluation.
type studentRecord struct {
	byCourseID   map[string][]models.CourseAttempt
	byCourseCode map[string][]models.CourseAttempt
	earned       float64
}

func buildStudentRecord(attempts []models.CourseAttempt) *studentRecord {
	rec := &studentRecord{
		byCourseID:   make(map[string][]models.CourseAttempt),
		byCourseCode: make(map[string][]models.CourseAttempt),
	}
	for _, a := range attempts {
		rec.byCourseID[a.CourseID] = append(rec.byCourseID[a.CourseID], a)
		if a.CourseCode != "" {
			rec.byCourseCode[a.CourseCode] = append(rec.byCourseCode[a.CourseCode], a)
		}
		if a.CreditsEarned {
			rec.earned += a.Credits
		}
	}
	return rec
}

// Evaluate checks all active prerequisite rules attached to a course. A
// course without rules is trivially satisfied.
func (s *RequisiteService) Evaluate(ctx context.Context, studentID, courseID string) (*models.RequisiteResult, error) {
	rules, err := s.courses.ListActiveRequisites(ctx, courseID, models.RequisitePrerequisite)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisites")
	}
	if len(rules) == 0 {
		return &models.RequisiteResult{Met: true}, nil
	}

	attempts, err := s.attempts.ListAttemptsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course attempts")
	}
	record := buildStudentRecord(attempts)

	result := &models.RequisiteResult{Met: true}
	for _, rule := range rules {
		met, missing, err := s.evaluateRule(ctx, rule, record)
		if err != nil {
			return nil, err
		}
		if !met {
			result.Met = false
			result.Missing = append(result.Missing, missing...)
		}
	}
	return result, nil
}

func (s *RequisiteService) evaluateRule(ctx context.Context, rule models.RequisiteRule, record *studentRecord) (bool, []models.MissingRequirement, error) {
	if rule.RuleTree != nil && *rule.RuleTree != "" {
		var node models.RuleNode
		if err := json.Unmarshal([]byte(*rule.RuleTree), &node); err != nil {
			return false, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed requisite rule tree")
		}
		met, missing, err := s.evaluateNode(ctx, node, record)
		return met, missing, err
	}
	if rule.RequisiteCourseID == nil {
		// A rule with neither tree nor course is vacuous.
		return true, nil, nil
	}

	minGrade := ""
	if rule.MinimumGrade != nil {
		minGrade = *rule.MinimumGrade
	}
	met, err := s.courseSatisfied(ctx, record.byCourseID[*rule.RequisiteCourseID], minGrade)
	if err != nil {
		return false, nil, err
	}
	if met {
		return true, nil, nil
	}
	missing, err := s.describeCourseRequirement(ctx, *rule.RequisiteCourseID, minGrade)
	if err != nil {
		return false, nil, err
	}
	return false, []models.MissingRequirement{missing}, nil
}

// evaluateNode folds the operator over child conditions. Missing reasons are
// collected only when the node itself fails, so a satisfied OR never reports
// the branches it did not need.
func (s *RequisiteService) evaluateNode(ctx context.Context, node models.RuleNode, record *studentRecord) (bool, []models.MissingRequirement, error) {
	var anyMet, allMet = false, true
	var missing []models.MissingRequirement

	for _, cond := range node.Conditions {
		met, condMissing, err := s.evaluateCondition(ctx, cond, record)
		if err != nil {
			return false, nil, err
		}
		if met {
			anyMet = true
		} else {
			allMet = false
			missing = append(missing, condMissing...)
		}
	}

	switch node.Operator {
	case models.RuleOperatorOr:
		if anyMet || len(node.Conditions) == 0 {
			return true, nil, nil
		}
		return false, missing, nil
	default: // AND
		if allMet {
			return true, nil, nil
		}
		return false, missing, nil
	}
}

func (s *RequisiteService) evaluateCondition(ctx context.Context, cond models.RuleCondition, record *studentRecord) (bool, []models.MissingRequirement, error) {
	if cond.Node != nil {
		return s.evaluateNode(ctx, *cond.Node, record)
	}

	switch cond.Type {
	case models.ConditionCourse:
		attempts := record.byCourseID[cond.CourseID]
		if len(attempts) == 0 && cond.CourseCode != "" {
			attempts = record.byCourseCode[cond.CourseCode]
		}
		met, err := s.courseSatisfied(ctx, attempts, cond.MinimumGrade)
		if err != nil {
			return false, nil, err
		}
		if met {
			return true, nil, nil
		}
		missing := models.MissingRequirement{
			CourseCode:   cond.CourseCode,
			MinimumGrade: cond.MinimumGrade,
		}
		if cond.CourseCode == "" && cond.CourseID != "" {
			described, err := s.describeCourseRequirement(ctx, cond.CourseID, cond.MinimumGrade)
			if err != nil {
				return false, nil, err
			}
			missing = described
		} else {
			missing.Description = courseRequirementText(cond.CourseCode, cond.MinimumGrade)
		}
		return false, []models.MissingRequirement{missing}, nil

	case models.ConditionCredits:
		if record.earned >= cond.MinCredits {
			return true, nil, nil
		}
		return false, []models.MissingRequirement{{
			Description: fmt.Sprintf("requires at least %.1f earned credits", cond.MinCredits),
		}}, nil

	case models.ConditionStanding, models.ConditionTest:
		// Satisfied pending standing/test-score lookups.
		return true, nil, nil

	default:
		s.logger.Warn("unknown requisite condition type", zap.String("type", string(cond.Type)))
		return true, nil, nil
	}
}

// courseSatisfied reports whether any attempt of the requisite course meets
// the minimum grade. Every attempt is compared, not just the most recent.
func (s *RequisiteService) courseSatisfied(ctx context.Context, attempts []models.CourseAttempt, minimumGrade string) (bool, error) {
	if len(attempts) == 0 {
		return false, nil
	}
	if minimumGrade == "" {
		return true, nil
	}

	def, err := s.grades.FindDefinitionByCode(ctx, minimumGrade)
	if err != nil {
		if isNoRows(err) {
			return false, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("unknown minimum grade %q", minimumGrade))
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade definition")
	}
	var minPoints float64
	if def.Points != nil {
		minPoints = *def.Points
	}

	for _, a := range attempts {
		if a.GradePoints != nil && *a.GradePoints >= minPoints {
			return true, nil
		}
	}
	return false, nil
}

func (s *RequisiteService) describeCourseRequirement(ctx context.Context, courseID, minimumGrade string) (models.MissingRequirement, error) {
	code := courseID
	if course, err := s.courses.FindByID(ctx, courseID); err == nil {
		code = course.Code
	} else if !isNoRows(err) {
		return models.MissingRequirement{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requisite course")
	}
	return models.MissingRequirement{
		Description:  courseRequirementText(code, minimumGrade),
		CourseCode:   code,
		MinimumGrade: minimumGrade,
	}, nil
}

func courseRequirementText(code, minimumGrade string) string {
	if minimumGrade != "" {
		return fmt.Sprintf("requires %s with a grade of %s or better", code, minimumGrade)
	}
	return fmt.Sprintf("requires completion of %s", code)
}
