package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"loanflow/apperrors"
	"loanflow/database"
	"loanflow/models"
	"loanflow/utils"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// MaxUploadSize is the largest accepted document
const MaxUploadSize = 10 << 20

const thumbnailWidth = 200

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// UploadRequest is a document file with its classification
type UploadRequest struct {
	DocType           models.DocType
	LoanApplicationID *uint
	FileName          string
	Data              []byte
}

// DocumentService validates uploads, stores their contents and hands them
// to the loan lifecycle
type DocumentService struct {
	repo  database.Repository
	loans *LoanService
	store DocumentStore
}

// NewDocumentService creates a DocumentService
func NewDocumentService(repo database.Repository, loans *LoanService, store DocumentStore) *DocumentService {
	return &DocumentService{repo: repo, loans: loans, store: store}
}

// Validate checks the document type, extension and size
func (s *DocumentService) Validate(req UploadRequest) (ext string, err error) {
	if !req.DocType.Valid() {
		return "", apperrors.ErrInvalidDocType
	}
	ext = strings.ToLower(filepath.Ext(req.FileName))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", apperrors.ErrInvalidFileType
	}
	if len(req.Data) > MaxUploadSize {
		return "", apperrors.ErrFileTooLarge
	}
	if len(req.Data) == 0 {
		return "", apperrors.Validation("file is empty")
	}
	return ext, nil
}

// Upload stores the file and records the document. Nothing is kept when
// the loan rejects the attachment.
func (s *DocumentService) Upload(ctx context.Context, applicantID uint, req UploadRequest) (*AttachResult, error) {
	ext, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	doc := &models.Document{
		ID:          id,
		DocType:     req.DocType,
		FileName:    filepath.Base(req.FileName),
		ContentType: allowedExtensions[ext],
		Size:        int64(len(req.Data)),
		StorageKey:  path.Join("documents", fmt.Sprint(applicantID), id+ext),
	}

	var stored []string
	write := func(ctx context.Context) error {
		if err := s.store.Put(ctx, doc.StorageKey, doc.ContentType, req.Data); err != nil {
			return fmt.Errorf("store document: %w", err)
		}
		stored = append(stored, doc.StorageKey)

		if strings.HasPrefix(doc.ContentType, "image/") {
			key, err := s.storeThumbnail(ctx, doc.StorageKey, req.Data)
			if err != nil {
				utils.LogFailure("services", "DocumentService.Upload", "thumbnail skipped", doc.StorageKey, err)
				return nil
			}
			doc.ThumbnailKey = key
			stored = append(stored, key)
		}
		return nil
	}

	res, err := s.loans.AttachDocument(ctx, applicantID, req.LoanApplicationID, doc, write)
	if err != nil {
		for _, key := range stored {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				utils.LogFailure("services", "DocumentService.Upload", "orphaned blob", key, delErr)
			}
		}
		return nil, err
	}
	return res, nil
}

func (s *DocumentService) storeThumbnail(ctx context.Context, key string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	thumbKey := path.Join(path.Dir(key), "thumbnails", strings.TrimSuffix(path.Base(key), path.Ext(key))+".jpg")
	if err := s.store.Put(ctx, thumbKey, "image/jpeg", buf.Bytes()); err != nil {
		return "", err
	}
	return thumbKey, nil
}

// List returns the applicant's documents, newest first
func (s *DocumentService) List(ctx context.Context, applicantID uint) ([]models.Document, error) {
	return s.repo.ListDocumentsByApplicant(ctx, applicantID)
}
