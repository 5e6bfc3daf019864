package models

import "time"

// Course models a catalog course.
type Course struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Title          string    `db:"title" json:"title"`
	DefaultCredits float64   `db:"default_credits" json:"default_credits"`
	VariableCredit bool      `db:"variable_credit" json:"variable_credit"`
	MinCredits     *float64  `db:"min_credits" json:"min_credits,omitempty"`
	MaxCredits     *float64  `db:"max_credits" json:"max_credits,omitempty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// RequisiteType distinguishes prerequisites from corequisites.
type RequisiteType string

const (
	RequisitePrerequisite RequisiteType = "PREREQUISITE"
	RequisiteCorequisite  RequisiteType = "COREQUISITE"
)

// RuleOperator combines child condition results within a rule tree node.
type RuleOperator string

const (
	RuleOperatorAnd RuleOperator = "AND"
	RuleOperatorOr  RuleOperator = "OR"
)

// ConditionType tags the variants a rule tree condition can take.
type ConditionType string

const (
	ConditionCourse   ConditionType = "COURSE"
	ConditionCredits  ConditionType = "CREDITS"
	ConditionStanding ConditionType = "STANDING"
	ConditionTest     ConditionType = "TEST"
)

// RuleNode is a rule tree node: an operator folded over child conditions.
type RuleNode struct {
	Operator   RuleOperator    `json:"operator"`
	Conditions []RuleCondition `json:"conditions"`
}

// RuleCondition is one leaf (or nested group) of a requisite rule tree. The
// populated fields depend on Type; Node carries a nested group when set.
type RuleCondition struct {
	Type         ConditionType `json:"type"`
	CourseID     string        `json:"course_id,omitempty"`
	CourseCode   string        `json:"course_code,omitempty"`
	MinimumGrade string        `json:"minimum_grade,omitempty"`
	MinCredits   float64       `json:"min_credits,omitempty"`
	Standing     string        `json:"standing,omitempty"`
	TestCode     string        `json:"test_code,omitempty"`
	MinScore     float64       `json:"min_score,omitempty"`
	Node         *RuleNode     `json:"node,omitempty"`
}

// RequisiteRule attaches a requirement to a course. Either the simple pair
// (RequisiteCourseID, MinimumGrade) is set, or RuleTree holds a serialized
// RuleNode.
type RequisiteRule struct {
	ID                string        `db:"id" json:"id"`
	CourseID          string        `db:"course_id" json:"course_id"`
	Type              RequisiteType `db:"type" json:"type"`
	RequisiteCourseID *string       `db:"requisite_course_id" json:"requisite_course_id,omitempty"`
	MinimumGrade      *string       `db:"minimum_grade" json:"minimum_grade,omitempty"`
	RuleTree          *string       `db:"rule_tree" json:"rule_tree,omitempty"`
	Active            bool          `db:"active" json:"active"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// MissingRequirement describes one unmet requisite in a form a client can
// render line by line.
type MissingRequirement struct {
	Description  string `json:"description"`
	CourseCode   string `json:"course_code,omitempty"`
	MinimumGrade string `json:"minimum_grade,omitempty"`
}

// RequisiteResult is the outcome of evaluating a course's requisites for a
// student.
type RequisiteResult struct {
	Met     bool                 `json:"met"`
	Missing []MissingRequirement `json:"missing,omitempty"`
}
