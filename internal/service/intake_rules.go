package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

// IntakeStep numbers the five screens of the application form.
type IntakeStep int

const (
	StepPersonal  IntakeStep = 1
	StepAcademic  IntakeStep = 2
	StepCategory  IntakeStep = 3
	StepDocuments IntakeStep = 4
	StepReview    IntakeStep = 5
)

// Valid reports whether the step exists.
func (s IntakeStep) Valid() bool {
	return s >= StepPersonal && s <= StepReview
}

const birthDateLayout = "2006-01-02"

// Grades use the 0 to 20 scale.
const (
	gradeScaleMin = 0.0
	gradeScaleMax = 20.0
)

// Rule codes carried by violations.
const (
	RuleRequired    = "required"
	RuleFormat      = "format"
	RuleNumber      = "number"
	RuleMinimum     = "minimum"
	RuleRange       = "range"
	RuleEnum        = "enum"
	RuleMinLength   = "min_length"
	RuleNonNegative = "non_negative"
)

// IntakeDraft is the accumulated, still untyped form state. Every field is kept as the
// raw text the applicant typed so the rules can report parse failures themselves.
type IntakeDraft struct {
	FullName   string `json:"fullName" form:"fullName"`
	BirthDate  string `json:"birthDate" form:"birthDate"`
	NationalID string `json:"nationalId" form:"nationalId"`
	Phone      string `json:"phone" form:"phone"`
	Email      string `json:"email" form:"email"`
	Gender     string `json:"gender" form:"gender"`
	Address    string `json:"address" form:"address"`
	City       string `json:"city" form:"city"`
	Province   string `json:"province" form:"province"`

	EnrollmentStatus string `json:"enrollmentStatus" form:"enrollmentStatus"`
	SchoolName       string `json:"schoolName" form:"schoolName"`
	GradeAverage     string `json:"gradeAverage" form:"gradeAverage"`
	University       string `json:"university" form:"university"`
	Course           string `json:"course" form:"course"`
	AcademicYear     string `json:"academicYear" form:"academicYear"`

	Category                  string `json:"category" form:"category"`
	MotivationLetter          string `json:"motivationLetter" form:"motivationLetter"`
	FamilyIncome              string `json:"familyIncome" form:"familyIncome"`
	Objectives                string `json:"objectives" form:"objectives"`
	AcademicExperience        string `json:"academicExperience" form:"academicExperience"`
	ExtracurricularActivities string `json:"extracurricularActivities" form:"extracurricularActivities"`
	References                string `json:"references" form:"references"`
	FinancialSituation        string `json:"financialSituation" form:"financialSituation"`
	Dependents                string `json:"dependents" form:"dependents"`

	// Documents lists the slots that currently hold a file.
	Documents []models.DocumentType `json:"documents" form:"-"`
}

// Enrolled reports whether the applicant declared current enrollment.
func (d IntakeDraft) Enrolled() bool {
	return models.EnrollmentStatus(strings.TrimSpace(d.EnrollmentStatus)) == models.EnrollmentEnrolled
}

// HasDocument reports whether the slot has been filled.
func (d IntakeDraft) HasDocument(docType models.DocumentType) bool {
	for _, filled := range d.Documents {
		if filled == docType {
			return true
		}
	}
	return false
}

// Violation names one failed rule.
type Violation struct {
	Step   IntakeStep `json:"step"`
	Field  string     `json:"field"`
	Rule   string     `json:"rule"`
	Reason string     `json:"reason"`
}

// StepResult is the outcome of evaluating one step.
type StepResult struct {
	Step       IntakeStep  `json:"step"`
	Passed     bool        `json:"passed"`
	Reason     string      `json:"reason,omitempty"`
	Violations []Violation `json:"violations"`
}

// IntakeRulesConfig tunes thresholds.
type IntakeRulesConfig struct {
	MinGradeAverage     float64
	CategoryMinimums    map[models.Category]float64
	MinMotivationLength int
}

// CategoryMinimums converts configured per-category grade minimums, rejecting unknown
// categories and grades outside the scale.
func CategoryMinimums(raw map[string]float64) (map[models.Category]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	result := make(map[models.Category]float64, len(raw))
	for name, grade := range raw {
		category := models.Category(name)
		if !category.Valid() {
			return nil, fmt.Errorf("unknown category %q in grade minimums", name)
		}
		if grade < gradeScaleMin || grade > gradeScaleMax {
			return nil, fmt.Errorf("grade minimum %s for %q is outside 0 to 20", formatGrade(grade), name)
		}
		result[category] = grade
	}
	return result, nil
}

// IntakeRules evaluates the form rules. It performs no I/O and is safe for concurrent use.
type IntakeRules struct {
	cfg      IntakeRulesConfig
	validate *validator.Validate
}

// NewIntakeRules constructs the rule set with defaults for unset thresholds.
func NewIntakeRules(cfg IntakeRulesConfig, validate *validator.Validate) *IntakeRules {
	if cfg.MinGradeAverage <= 0 {
		cfg.MinGradeAverage = 16.0
	}
	if cfg.MinMotivationLength <= 0 {
		cfg.MinMotivationLength = 10
	}
	if validate == nil {
		validate = validator.New()
	}
	return &IntakeRules{cfg: cfg, validate: validate}
}

// MinimumGrade returns the grade threshold for a category, falling back to the global minimum.
func (r *IntakeRules) MinimumGrade(category models.Category) float64 {
	if min, ok := r.cfg.CategoryMinimums[category]; ok && min > 0 {
		return min
	}
	return r.cfg.MinGradeAverage
}

// CheckStep evaluates a single step. Step 5 re-evaluates steps 1 through 4.
func (r *IntakeRules) CheckStep(step IntakeStep, draft IntakeDraft) StepResult {
	var violations []Violation
	switch step {
	case StepPersonal:
		violations = r.personal(draft)
	case StepAcademic:
		violations = r.academic(draft)
	case StepCategory:
		violations = r.category(draft)
	case StepDocuments:
		violations = r.documents(draft)
	case StepReview:
		violations = r.CheckSubmission(draft)
	default:
		violations = []Violation{{Step: step, Field: "step", Rule: RuleRange, Reason: fmt.Sprintf("unknown step %d", step)}}
	}
	return newStepResult(step, violations)
}

// CheckSubmission evaluates every step that carries rules.
func (r *IntakeRules) CheckSubmission(draft IntakeDraft) []Violation {
	violations := make([]Violation, 0)
	violations = append(violations, r.personal(draft)...)
	violations = append(violations, r.academic(draft)...)
	violations = append(violations, r.category(draft)...)
	violations = append(violations, r.documents(draft)...)
	return violations
}

func (r *IntakeRules) personal(d IntakeDraft) []Violation {
	v := &violationSet{step: StepPersonal}
	v.required("fullName", d.FullName, "full name is required")
	if v.required("birthDate", d.BirthDate, "birth date is required") {
		if _, err := time.Parse(birthDateLayout, strings.TrimSpace(d.BirthDate)); err != nil {
			v.add("birthDate", RuleFormat, "birth date must use the YYYY-MM-DD format")
		}
	}
	v.required("nationalId", d.NationalID, "national id number is required")
	v.required("phone", d.Phone, "phone is required")
	if v.required("email", d.Email, "email is required") {
		if err := r.validate.Var(strings.TrimSpace(d.Email), "email"); err != nil {
			v.add("email", RuleFormat, "email address is not valid")
		}
	}
	v.required("gender", d.Gender, "gender is required")
	v.required("address", d.Address, "address is required")
	v.required("city", d.City, "city is required")
	v.required("province", d.Province, "province is required")
	return v.items
}

func (r *IntakeRules) academic(d IntakeDraft) []Violation {
	v := &violationSet{step: StepAcademic}
	if v.required("enrollmentStatus", d.EnrollmentStatus, "enrollment status is required") {
		if !models.EnrollmentStatus(strings.TrimSpace(d.EnrollmentStatus)).Valid() {
			v.add("enrollmentStatus", RuleEnum, "enrollment status must be not-enrolled or enrolled")
		}
	}
	v.required("schoolName", d.SchoolName, "school name is required")
	if v.required("gradeAverage", d.GradeAverage, "final grade average is required") {
		grade, err := ParseDecimal(d.GradeAverage)
		minimum := r.MinimumGrade(models.Category(strings.TrimSpace(d.Category)))
		switch {
		case err != nil:
			v.add("gradeAverage", RuleNumber, "final grade average must be a number")
		case grade < gradeScaleMin || grade > gradeScaleMax:
			v.add("gradeAverage", RuleRange, "final grade average must be between 0 and 20")
		case grade < minimum:
			v.add("gradeAverage", RuleMinimum, fmt.Sprintf("final grade average must be at least %s", formatGrade(minimum)))
		}
	}
	v.required("course", d.Course, "course is required")
	if d.Enrolled() {
		v.required("university", d.University, "university is required when enrolled")
	}
	return v.items
}

func (r *IntakeRules) category(d IntakeDraft) []Violation {
	v := &violationSet{step: StepCategory}
	if v.required("category", d.Category, "a category must be selected") {
		if !models.Category(strings.TrimSpace(d.Category)).Valid() {
			v.add("category", RuleEnum, "category is not recognised")
		}
	}
	if v.required("motivationLetter", d.MotivationLetter, "motivation letter is required") {
		if utf8.RuneCountInString(strings.TrimSpace(d.MotivationLetter)) < r.cfg.MinMotivationLength {
			v.add("motivationLetter", RuleMinLength, fmt.Sprintf("motivation letter must have at least %d characters", r.cfg.MinMotivationLength))
		}
	}
	if v.required("familyIncome", d.FamilyIncome, "family income is required") {
		income, err := ParseDecimal(d.FamilyIncome)
		switch {
		case err != nil:
			v.add("familyIncome", RuleNumber, "family income must be a number")
		case income < 0:
			v.add("familyIncome", RuleNonNegative, "family income cannot be negative")
		}
	}
	v.required("objectives", d.Objectives, "objectives are required")
	v.required("academicExperience", d.AcademicExperience, "academic experience is required")
	v.required("extracurricularActivities", d.ExtracurricularActivities, "extracurricular activities are required")
	v.required("references", d.References, "references are required")
	if raw := strings.TrimSpace(d.FinancialSituation); raw != "" && !models.FinancialSituation(raw).Valid() {
		v.add("financialSituation", RuleEnum, "financial situation is not recognised")
	}
	if raw := strings.TrimSpace(d.Dependents); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			v.add("dependents", RuleNonNegative, "dependents must be a whole number of zero or more")
		}
	}
	return v.items
}

func (r *IntakeRules) documents(d IntakeDraft) []Violation {
	v := &violationSet{step: StepDocuments}
	for _, docType := range RequiredDocuments(d.Enrolled()) {
		if !d.HasDocument(docType) {
			v.add(string(docType), RuleRequired, fmt.Sprintf("%s document is required", docType))
		}
	}
	return v.items
}

// RequiredDocuments lists the mandatory slots. Enrollment proof is only mandatory when enrolled.
func RequiredDocuments(enrolled bool) []models.DocumentType {
	required := []models.DocumentType{
		models.DocumentNationalID,
		models.DocumentCompletionCertificate,
		models.DocumentGradeTranscript,
	}
	if enrolled {
		required = append(required, models.DocumentEnrollmentProof)
	}
	return required
}

// ParseDecimal parses a finite form number, accepting a decimal comma.
func ParseDecimal(raw string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return value, nil
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func newStepResult(step IntakeStep, violations []Violation) StepResult {
	if violations == nil {
		violations = []Violation{}
	}
	result := StepResult{Step: step, Passed: len(violations) == 0, Violations: violations}
	if !result.Passed {
		result.Reason = violations[0].Reason
	}
	return result
}

type violationSet struct {
	step  IntakeStep
	items []Violation
}

func (v *violationSet) add(field, rule, reason string) {
	v.items = append(v.items, Violation{Step: v.step, Field: field, Rule: rule, Reason: reason})
}

// required records a violation for blank values and reports whether the value was present.
func (v *violationSet) required(field, value, reason string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, RuleRequired, reason)
		return false
	}
	return true
}
