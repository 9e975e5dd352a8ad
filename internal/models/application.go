package models

import "time"

// EnrollmentStatus records whether the applicant is currently enrolled in higher education.
type EnrollmentStatus string

const (
	EnrollmentNotEnrolled EnrollmentStatus = "not-enrolled"
	EnrollmentEnrolled    EnrollmentStatus = "enrolled"
)

// Valid reports whether the value is a known enrollment status.
func (e EnrollmentStatus) Valid() bool {
	return e == EnrollmentNotEnrolled || e == EnrollmentEnrolled
}

// Category is the scholarship track an applicant competes in.
type Category string

const (
	CategoryHighSchoolGraduate Category = "high-school-graduate"
	CategoryUniversityStudent  Category = "university-student"
	CategoryTechnicalCourse    Category = "technical-course"
	CategoryPostgraduate       Category = "postgraduate"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryHighSchoolGraduate,
	CategoryUniversityStudent,
	CategoryTechnicalCourse,
	CategoryPostgraduate,
}

// Valid reports whether the value is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ApplicationStatus is the review lifecycle state.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusUnderReview ApplicationStatus = "under-review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []ApplicationStatus{StatusPending, StatusUnderReview, StatusApproved, StatusRejected}

// Valid reports whether the value is a known status.
func (s ApplicationStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// FinancialSituation is the optional self-declared income band.
type FinancialSituation string

const (
	FinancialLowIncome    FinancialSituation = "low-income"
	FinancialMiddleIncome FinancialSituation = "middle-income"
	FinancialUndisclosed  FinancialSituation = "undisclosed"
)

// Valid reports whether the value is a known financial situation.
func (f FinancialSituation) Valid() bool {
	switch f {
	case FinancialLowIncome, FinancialMiddleIncome, FinancialUndisclosed:
		return true
	}
	return false
}

// Application is one applicant's submission.
type Application struct {
	ID                        int64               `db:"id" json:"id"`
	FullName                  string              `db:"full_name" json:"fullName"`
	BirthDate                 time.Time           `db:"birth_date" json:"birthDate"`
	NationalID                string              `db:"national_id" json:"nationalId"`
	Phone                     string              `db:"phone" json:"phone"`
	Email                     string              `db:"email" json:"email"`
	Gender                    string              `db:"gender" json:"gender"`
	Address                   string              `db:"address" json:"address"`
	City                      string              `db:"city" json:"city"`
	Province                  string              `db:"province" json:"province"`
	EnrollmentStatus          EnrollmentStatus    `db:"enrollment_status" json:"enrollmentStatus"`
	SchoolName                string              `db:"school_name" json:"schoolName"`
	GradeAverage              float64             `db:"grade_average" json:"gradeAverage"`
	University                *string             `db:"university" json:"university,omitempty"`
	Course                    *string             `db:"course" json:"course,omitempty"`
	AcademicYear              *string             `db:"academic_year" json:"academicYear,omitempty"`
	MotivationLetter          string              `db:"motivation_letter" json:"motivationLetter"`
	Objectives                string              `db:"objectives" json:"objectives"`
	AcademicExperience        string              `db:"academic_experience" json:"academicExperience"`
	ExtracurricularActivities string              `db:"extracurricular_activities" json:"extracurricularActivities"`
	References                string              `db:"reference_contacts" json:"references"`
	FinancialSituation        *FinancialSituation `db:"financial_situation" json:"financialSituation,omitempty"`
	FamilyIncome              float64             `db:"family_income" json:"familyIncome"`
	Dependents                int                 `db:"dependents" json:"dependents"`
	Category                  Category            `db:"category" json:"category"`
	Status                    ApplicationStatus   `db:"status" json:"status"`
	CreatedAt                 time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt                 time.Time           `db:"updated_at" json:"updatedAt"`
}

// ApplicationFilter narrows administrative listings.
type ApplicationFilter struct {
	Status   ApplicationStatus
	Category Category
	Search   string
	Page     int
	Limit    int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the page count, which is zero for an empty listing.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
