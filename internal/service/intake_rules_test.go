package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

func validDraft() IntakeDraft {
	return IntakeDraft{
		FullName:                  "Ana Maria Baptista",
		BirthDate:                 "2004-03-18",
		NationalID:                "004512378LA041",
		Phone:                     "+244923000111",
		Email:                     "ana.baptista@example.org",
		Gender:                    "feminino",
		Address:                   "Rua da Missão 12",
		City:                      "Luanda",
		Province:                  "Luanda",
		EnrollmentStatus:          string(models.EnrollmentNotEnrolled),
		SchoolName:                "Liceu Mutu ya Kevela",
		GradeAverage:              "17.4",
		Course:                    "Engenharia Informática",
		Category:                  string(models.CategoryHighSchoolGraduate),
		MotivationLetter:          "Quero estudar engenharia para servir a minha comunidade.",
		FamilyIncome:              "85000",
		Objectives:                "Concluir a licenciatura",
		AcademicExperience:        "Olimpíadas de matemática",
		ExtracurricularActivities: "Voluntariado",
		References:                "Prof. Domingos, +244912000000",
		Documents: []models.DocumentType{
			models.DocumentNationalID,
			models.DocumentCompletionCertificate,
			models.DocumentGradeTranscript,
		},
	}
}

func fields(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Field)
	}
	return out
}

func TestIntakeRulesValidDraftPassesEveryStep(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()

	for step := StepPersonal; step <= StepReview; step++ {
		result := rules.CheckStep(step, draft)
		assert.Truef(t, result.Passed, "step %d: %v", step, result.Violations)
		assert.Empty(t, result.Reason)
	}
	assert.Empty(t, rules.CheckSubmission(draft))
}

func TestIntakeRulesPersonalRequiresEveryField(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)

	result := rules.CheckStep(StepPersonal, IntakeDraft{FullName: "   "})
	require.False(t, result.Passed)
	assert.Equal(t, "full name is required", result.Reason)
	assert.ElementsMatch(t, []string{"fullName", "birthDate", "nationalId", "phone", "email", "gender", "address", "city", "province"}, fields(result.Violations))
}

func TestIntakeRulesPersonalFormats(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	draft.BirthDate = "18/03/2004"
	draft.Email = "not-an-email"

	result := rules.CheckStep(StepPersonal, draft)
	require.False(t, result.Passed)
	assert.ElementsMatch(t, []string{"birthDate", "email"}, fields(result.Violations))
	for _, v := range result.Violations {
		assert.Equal(t, RuleFormat, v.Rule)
	}
}

func TestIntakeRulesAcademicGradeThreshold(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)

	cases := map[string]struct {
		grade string
		rule  string
	}{
		"below minimum": {grade: "15.9", rule: RuleMinimum},
		"not a number":  {grade: "dezassete", rule: RuleNumber},
		"out of range":  {grade: "21", rule: RuleRange},
		"negative":      {grade: "-3", rule: RuleRange},
		"not finite":    {grade: "NaN", rule: RuleNumber},
		"missing":       {grade: " ", rule: RuleRequired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			draft := validDraft()
			draft.GradeAverage = tc.grade
			result := rules.CheckStep(StepAcademic, draft)
			require.False(t, result.Passed)
			require.Len(t, result.Violations, 1)
			assert.Equal(t, "gradeAverage", result.Violations[0].Field)
			assert.Equal(t, tc.rule, result.Violations[0].Rule)
		})
	}
}

func TestIntakeRulesAcademicAcceptsBoundaryAndDecimalComma(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	for _, grade := range []string{"16", "16.0", "16,5", "20"} {
		draft := validDraft()
		draft.GradeAverage = grade
		assert.Truef(t, rules.CheckStep(StepAcademic, draft).Passed, "grade %s", grade)
	}
}

func TestIntakeRulesCategoryMinimumOverride(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{
		CategoryMinimums: map[models.Category]float64{models.CategoryPostgraduate: 14},
	}, nil)
	draft := validDraft()
	draft.GradeAverage = "15"

	draft.Category = string(models.CategoryPostgraduate)
	assert.True(t, rules.CheckStep(StepAcademic, draft).Passed)

	draft.Category = string(models.CategoryTechnicalCourse)
	assert.False(t, rules.CheckStep(StepAcademic, draft).Passed)
}

func TestCategoryMinimumsFromConfig(t *testing.T) {
	minimums, err := CategoryMinimums(map[string]float64{"postgraduate": 14})
	require.NoError(t, err)
	assert.Equal(t, map[models.Category]float64{models.CategoryPostgraduate: 14}, minimums)

	rules := NewIntakeRules(IntakeRulesConfig{CategoryMinimums: minimums}, nil)
	assert.Equal(t, 14.0, rules.MinimumGrade(models.CategoryPostgraduate))
	assert.Equal(t, 16.0, rules.MinimumGrade(models.CategoryTechnicalCourse))

	minimums, err = CategoryMinimums(nil)
	require.NoError(t, err)
	assert.Nil(t, minimums)

	_, err = CategoryMinimums(map[string]float64{"doctorate": 14})
	assert.Error(t, err)
	_, err = CategoryMinimums(map[string]float64{"postgraduate": 21})
	assert.Error(t, err)
}

func TestIntakeRulesEnrolledRequiresUniversity(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	draft.EnrollmentStatus = string(models.EnrollmentEnrolled)

	result := rules.CheckStep(StepAcademic, draft)
	require.False(t, result.Passed)
	assert.Equal(t, []string{"university"}, fields(result.Violations))

	draft.University = "Universidade Agostinho Neto"
	assert.True(t, rules.CheckStep(StepAcademic, draft).Passed)
}

func TestIntakeRulesAcademicUnknownEnrollmentStatus(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	draft.EnrollmentStatus = "graduated"

	result := rules.CheckStep(StepAcademic, draft)
	require.False(t, result.Passed)
	assert.Equal(t, RuleEnum, result.Violations[0].Rule)
}

func TestIntakeRulesCategoryStep(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{MinMotivationLength: 20}, nil)
	draft := validDraft()
	draft.Category = ""
	draft.MotivationLetter = "curta"
	draft.FamilyIncome = "-1"
	draft.FinancialSituation = "rich"
	draft.Dependents = "two"

	result := rules.CheckStep(StepCategory, draft)
	require.False(t, result.Passed)
	assert.Equal(t, "a category must be selected", result.Reason)
	assert.ElementsMatch(t, []string{"category", "motivationLetter", "familyIncome", "financialSituation", "dependents"}, fields(result.Violations))
}

func TestIntakeRulesFamilyIncomeZeroIsAllowed(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	draft.FamilyIncome = "0"
	draft.FinancialSituation = string(models.FinancialLowIncome)
	draft.Dependents = "3"

	assert.True(t, rules.CheckStep(StepCategory, draft).Passed)
}

func TestIntakeRulesDocumentsDependOnEnrollment(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	assert.True(t, rules.CheckStep(StepDocuments, draft).Passed)

	draft.EnrollmentStatus = string(models.EnrollmentEnrolled)
	result := rules.CheckStep(StepDocuments, draft)
	require.False(t, result.Passed)
	assert.Equal(t, []string{string(models.DocumentEnrollmentProof)}, fields(result.Violations))

	draft.Documents = []models.DocumentType{models.DocumentGradeTranscript}
	result = rules.CheckStep(StepDocuments, draft)
	assert.Len(t, result.Violations, 3)
}

func TestIntakeRulesReviewAggregatesEarlierSteps(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	draft := validDraft()
	draft.Phone = ""
	draft.GradeAverage = "12"
	draft.Documents = nil

	result := rules.CheckStep(StepReview, draft)
	require.False(t, result.Passed)
	steps := map[IntakeStep]bool{}
	for _, v := range result.Violations {
		steps[v.Step] = true
	}
	assert.Equal(t, map[IntakeStep]bool{StepPersonal: true, StepAcademic: true, StepDocuments: true}, steps)
}

func TestIntakeRulesUnknownStep(t *testing.T) {
	rules := NewIntakeRules(IntakeRulesConfig{}, nil)
	result := rules.CheckStep(IntakeStep(9), validDraft())
	assert.False(t, result.Passed)
	assert.False(t, IntakeStep(9).Valid())
}
