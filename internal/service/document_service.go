package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
	"github.com/noah-isme/scholarship-intake-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

// Naming schemes for stored files.
const (
	NamingTimestamp   = "timestamp"
	NamingApplication = "application"
)

const defaultMaxDocumentSize = 5 * 1024 * 1024

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	ListByApplication(ctx context.Context, applicationID int64) ([]models.Document, error)
	FindByStoredName(ctx context.Context, storedName string) (*models.Document, error)
}

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type documentURLSigner interface {
	Generate(documentID, storedName string) (string, time.Time, error)
	Parse(token string) (documentID, storedName string, expiresAt time.Time, err error)
}

type documentOutcomeRecorder interface {
	RecordDocumentOutcome(documentType, status string)
}

// DocumentUpload is one file taken from a multipart form slot.
type DocumentUpload struct {
	DocumentType models.DocumentType
	Filename     string
	Size         int64
	MimeType     string
	Content      io.ReadSeeker
}

// DocumentDownload bundles an open file with the headers needed to stream it.
type DocumentDownload struct {
	File         *os.File
	StoredName   string
	OriginalName string
	ContentType  string
	SizeBytes    int64
}

// DocumentView is a document row plus a link the admin UI can follow.
type DocumentView struct {
	models.Document
	DownloadURL  string     `json:"downloadUrl"`
	URLExpiresAt *time.Time `json:"urlExpiresAt,omitempty"`
}

// DocumentServiceConfig holds upload limits and naming options.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	Naming       string
	APIPrefix    string
}

// DocumentService validates, stores and serves applicant documents.
type DocumentService struct {
	repo     documentStore
	storage  documentFileStorage
	signer   documentURLSigner
	outcomes documentOutcomeRecorder
	logger   *zap.Logger
	cfg      DocumentServiceConfig
	mimeSet  map[string]struct{}
	now      func() time.Time
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, storage documentFileStorage, signer documentURLSigner, outcomes documentOutcomeRecorder, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxDocumentSize
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/jpg", "image/png", "image/webp"}
	}
	if cfg.Naming != NamingApplication {
		cfg.Naming = NamingTimestamp
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &DocumentService{
		repo:     repo,
		storage:  storage,
		signer:   signer,
		outcomes: outcomes,
		logger:   logger,
		cfg:      cfg,
		mimeSet:  mimeSet,
		now:      time.Now,
	}
}

// MaxFileSize returns the per-file byte limit.
func (s *DocumentService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Validate checks slot, size and type without touching storage. The resolved MIME type
// is written back into the upload.
func (s *DocumentService) Validate(upload *DocumentUpload) error {
	if upload == nil || upload.Content == nil || upload.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if !upload.DocumentType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document slot %q", upload.DocumentType))
	}
	if upload.Size > s.cfg.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds the %d bytes limit", upload.DocumentType, s.cfg.MaxFileSize))
	}
	mimeType, err := s.detectMime(upload)
	if err != nil {
		return err
	}
	if _, allowed := s.mimeSet[mimeType]; !allowed {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s file type %s is not allowed", upload.DocumentType, mimeType))
	}
	upload.MimeType = mimeType
	return nil
}

// Store validates the upload, writes it under a generated name and records its metadata.
// The file is removed again when the metadata insert fails.
func (s *DocumentService) Store(ctx context.Context, applicationID int64, upload DocumentUpload) (*models.Document, error) {
	if err := s.Validate(&upload); err != nil {
		return nil, err
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}

	name := s.storedName(applicationID, upload.DocumentType, upload.Filename)
	written, err := s.storage.SaveStream(name, io.LimitReader(upload.Content, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	if written > s.cfg.MaxFileSize {
		_ = s.storage.Delete(name)
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds the %d bytes limit", upload.DocumentType, s.cfg.MaxFileSize))
	}

	doc := &models.Document{
		ApplicationID: applicationID,
		DocumentType:  upload.DocumentType,
		OriginalName:  filepath.Base(upload.Filename),
		StoredName:    name,
		FilePath:      s.fileURL(name),
		SizeBytes:     written,
		MimeType:      upload.MimeType,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.storage.Delete(name)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s document was already uploaded", upload.DocumentType))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}
	return doc, nil
}

// StoreBatch stores every upload independently. A failure only degrades its own slot; the
// returned flag reports whether any slot failed.
func (s *DocumentService) StoreBatch(ctx context.Context, applicationID int64, uploads []DocumentUpload) ([]models.DocumentOutcome, bool) {
	outcomes := make([]models.DocumentOutcome, 0, len(uploads))
	degraded := false
	for _, upload := range uploads {
		doc, err := s.Store(ctx, applicationID, upload)
		if err != nil {
			degraded = true
			reason := appErrors.FromError(err).Message
			s.logger.Warn("document storage failed",
				zap.Int64("application_id", applicationID),
				zap.String("document_type", string(upload.DocumentType)),
				zap.Error(err),
			)
			s.recordOutcome(upload.DocumentType, models.OutcomeFailed)
			outcomes = append(outcomes, models.DocumentOutcome{DocumentType: upload.DocumentType, Status: models.OutcomeFailed, Reason: reason})
			continue
		}
		s.recordOutcome(upload.DocumentType, models.OutcomeStored)
		outcomes = append(outcomes, models.DocumentOutcome{DocumentType: upload.DocumentType, Status: models.OutcomeStored, Document: doc})
	}
	return outcomes, degraded
}

// ListByApplication returns the application's documents with download links.
func (s *DocumentService) ListByApplication(ctx context.Context, applicationID int64) ([]DocumentView, error) {
	docs, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, s.describe(doc))
	}
	return views, nil
}

// SignedURL returns an expiring link to the document that does not need the session cookie.
func (s *DocumentService) SignedURL(doc models.Document) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	token, expiresAt, err := s.signer.Generate(strconv.FormatInt(doc.ID, 10), doc.StoredName)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return s.fileURL(doc.StoredName) + "?token=" + url.QueryEscape(token), expiresAt, nil
}

// Open resolves a stored file name for streaming. Names that could escape the storage
// directory are rejected.
func (s *DocumentService) Open(ctx context.Context, filename string) (*DocumentDownload, error) {
	if err := validateStoredName(filename); err != nil {
		return nil, err
	}
	file, err := s.storage.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file metadata")
	}

	download := &DocumentDownload{
		File:         file,
		StoredName:   filename,
		OriginalName: filename,
		ContentType:  contentTypeFor(filename),
		SizeBytes:    info.Size(),
	}
	if doc, err := s.repo.FindByStoredName(ctx, filename); err == nil {
		download.OriginalName = doc.OriginalName
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("document metadata lookup failed", zap.String("stored_name", filename), zap.Error(err))
	}
	return download, nil
}

// OpenSigned verifies a download token issued by SignedURL before opening the file.
func (s *DocumentService) OpenSigned(ctx context.Context, filename, token string) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signed downloads are disabled")
	}
	if err := validateStoredName(filename); err != nil {
		return nil, err
	}
	_, storedName, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	if storedName != filename {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link does not match file")
	}
	return s.Open(ctx, filename)
}

// RemoveFiles deletes the files behind the documents. Failures are logged and skipped.
func (s *DocumentService) RemoveFiles(docs []models.Document) {
	for _, doc := range docs {
		if err := s.storage.Delete(doc.StoredName); err != nil {
			s.logger.Warn("document file cleanup failed", zap.String("stored_name", doc.StoredName), zap.Error(err))
		}
	}
}

func (s *DocumentService) describe(doc models.Document) DocumentView {
	view := DocumentView{Document: doc, DownloadURL: s.fileURL(doc.StoredName)}
	if s.signer == nil {
		return view
	}
	link, expiresAt, err := s.SignedURL(doc)
	if err != nil {
		s.logger.Warn("document link signing failed", zap.Int64("document_id", doc.ID), zap.Error(err))
		return view
	}
	view.DownloadURL = link
	view.URLExpiresAt = &expiresAt
	return view
}

func (s *DocumentService) fileURL(storedName string) string {
	return strings.TrimRight(s.cfg.APIPrefix, "/") + "/files/" + url.PathEscape(storedName)
}

func (s *DocumentService) detectMime(upload *DocumentUpload) (string, error) {
	declared := normalizeMime(upload.MimeType)
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	detected, err := mimetype.DetectReader(upload.Content)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	return normalizeMime(detected.String()), nil
}

func (s *DocumentService) storedName(applicationID int64, docType models.DocumentType, original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if ext == "" || ext == "." || !safeExtension(ext) {
		ext = ".bin"
	}
	millis := s.now().UnixMilli()
	if s.cfg.Naming == NamingApplication {
		return fmt.Sprintf("%d_%s_%d%s", applicationID, docType, millis, ext)
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", millis, random, ext)
}

func (s *DocumentService) recordOutcome(docType models.DocumentType, status models.DocumentOutcomeStatus) {
	if s.outcomes == nil {
		return
	}
	s.outcomes.RecordDocumentOutcome(string(docType), string(status))
}

func validateStoredName(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "filename is required")
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid filename")
	}
	return nil
}

func normalizeMime(raw string) string {
	if idx := strings.Index(raw, ";"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func safeExtension(ext string) bool {
	if len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
