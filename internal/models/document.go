package models

import "time"

// DocumentType identifies which form slot a file was uploaded into.
type DocumentType string

const (
	DocumentNationalID            DocumentType = "national-id"
	DocumentCompletionCertificate DocumentType = "completion-certificate"
	DocumentGradeTranscript       DocumentType = "grade-transcript"
	DocumentEnrollmentProof       DocumentType = "enrollment-proof"
	DocumentRecommendationLetter  DocumentType = "recommendation-letter"
)

// DocumentTypes lists every slot in form order.
var DocumentTypes = []DocumentType{
	DocumentNationalID,
	DocumentCompletionCertificate,
	DocumentGradeTranscript,
	DocumentEnrollmentProof,
	DocumentRecommendationLetter,
}

// Valid reports whether the value is a known document slot.
func (d DocumentType) Valid() bool {
	for _, known := range DocumentTypes {
		if d == known {
			return true
		}
	}
	return false
}

// Document is the metadata row for one stored upload.
type Document struct {
	ID            int64        `db:"id" json:"id"`
	ApplicationID int64        `db:"application_id" json:"applicationId"`
	DocumentType  DocumentType `db:"document_type" json:"documentType"`
	OriginalName  string       `db:"original_name" json:"originalName"`
	StoredName    string       `db:"stored_name" json:"storedName"`
	FilePath      string       `db:"file_path" json:"filePath"`
	SizeBytes     int64        `db:"size_bytes" json:"sizeBytes"`
	MimeType      string       `db:"mime_type" json:"mimeType"`
	UploadedAt    time.Time    `db:"uploaded_at" json:"uploadedAt"`
}

// DocumentOutcomeStatus reports what happened to one upload in a batch.
type DocumentOutcomeStatus string

const (
	OutcomeStored DocumentOutcomeStatus = "stored"
	OutcomeFailed DocumentOutcomeStatus = "failed"
)

// DocumentOutcome pairs a document slot with the result of storing it.
type DocumentOutcome struct {
	DocumentType DocumentType          `json:"documentType"`
	Status       DocumentOutcomeStatus `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	Document     *Document             `json:"document,omitempty"`
}
