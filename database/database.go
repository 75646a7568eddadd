package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"loanflow/config"
	"loanflow/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database is the postgres-backed Repository
type Database struct {
	DB *gorm.DB
}

var _ Repository = (*Database)(nil)

// NewDatabase wraps an open gorm handle
func NewDatabase(db *gorm.DB) *Database {
	return &Database{DB: db}
}

// GetDB returns the gorm handle
func (d *Database) GetDB() *gorm.DB {
	return d.DB
}

// Close closes the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Connect opens the connection, configures the pool and runs migrations
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(cfg.DB.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  !cfg.IsProduction(),
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("run sql migrations: %w", err)
	}

	// AutoMigrate is a development convenience on top of the SQL migrations
	if cfg.DB.AutoMigrate {
		if err := autoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto-migrate models: %w", err)
		}
	}

	return db, nil
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://migrations", cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Applicant{},
		&models.OTPChallenge{},
		&models.LoanApplication{},
		&models.Document{},
		&models.ChatSession{},
		&models.ChatMessage{},
	)
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

// Transaction begins a transaction, hands fn a repository bound to it and
// commits when fn succeeds. A panic inside fn rolls back and re-panics.
func (d *Database) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	tx := d.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Database{DB: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Applicants

func (d *Database) CreateApplicant(ctx context.Context, a *models.Applicant) error {
	return duplicate(d.DB.WithContext(ctx).Create(a).Error)
}

func (d *Database) GetApplicantByID(ctx context.Context, id uint) (*models.Applicant, error) {
	var a models.Applicant
	if err := d.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (d *Database) GetApplicantByEmail(ctx context.Context, email string) (*models.Applicant, error) {
	var a models.Applicant
	if err := d.DB.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (d *Database) UpdateApplicant(ctx context.Context, a *models.Applicant) error {
	return d.DB.WithContext(ctx).Save(a).Error
}

func (d *Database) CountApplicants(ctx context.Context) (int64, error) {
	var n int64
	err := d.DB.WithContext(ctx).Model(&models.Applicant{}).Count(&n).Error
	return n, err
}

// OTP challenges

func (d *Database) CreateChallenge(ctx context.Context, c *models.OTPChallenge) error {
	return d.DB.WithContext(ctx).Create(c).Error
}

func pendingChallenges(db *gorm.DB) *gorm.DB {
	return db.Where("consumed = ? AND superseded_at IS NULL AND expired_at IS NULL", false)
}

func (d *Database) GetActiveChallenge(ctx context.Context, applicantID uint, ch models.Channel) (*models.OTPChallenge, error) {
	var c models.OTPChallenge
	err := pendingChallenges(d.DB.WithContext(ctx)).
		Where("applicant_id = ? AND channel = ?", applicantID, ch).
		Order("issued_at DESC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (d *Database) SupersedeChallenges(ctx context.Context, applicantID uint, ch models.Channel, at time.Time) error {
	return pendingChallenges(d.DB.WithContext(ctx).Model(&models.OTPChallenge{})).
		Where("applicant_id = ? AND channel = ?", applicantID, ch).
		Update("superseded_at", at).Error
}

func (d *Database) UpdateChallenge(ctx context.Context, c *models.OTPChallenge) error {
	return d.DB.WithContext(ctx).Save(c).Error
}

func (d *Database) ExpireChallenges(ctx context.Context, before time.Time) (int64, error) {
	res := pendingChallenges(d.DB.WithContext(ctx).Model(&models.OTPChallenge{})).
		Where("expires_at < ?", before).
		Update("expired_at", before)
	return res.RowsAffected, res.Error
}

// Loan applications

func (d *Database) CreateLoan(ctx context.Context, l *models.LoanApplication) error {
	return d.DB.WithContext(ctx).Omit("Documents").Create(l).Error
}

func (d *Database) GetLoan(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	var l models.LoanApplication
	err := d.DB.WithContext(ctx).
		Where("id = ? AND applicant_id = ?", loanID, applicantID).
		First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (d *Database) GetLoanForUpdate(ctx context.Context, applicantID, loanID uint) (*models.LoanApplication, error) {
	var l models.LoanApplication
	err := d.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND applicant_id = ?", loanID, applicantID).
		First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (d *Database) ListLoans(ctx context.Context, applicantID uint) ([]models.LoanApplication, error) {
	var loans []models.LoanApplication
	err := d.DB.WithContext(ctx).
		Where("applicant_id = ?", applicantID).
		Order("created_at DESC, id DESC").
		Find(&loans).Error
	return loans, err
}

func (d *Database) UpdateLoan(ctx context.Context, l *models.LoanApplication) error {
	return d.DB.WithContext(ctx).Omit("Documents").Save(l).Error
}

// Documents

func (d *Database) CreateDocument(ctx context.Context, doc *models.Document) error {
	return d.DB.WithContext(ctx).Create(doc).Error
}

func (d *Database) ListDocumentsByLoan(ctx context.Context, loanID uint) ([]models.Document, error) {
	var docs []models.Document
	err := d.DB.WithContext(ctx).
		Where("loan_application_id = ?", loanID).
		Order("uploaded_at ASC").
		Find(&docs).Error
	return docs, err
}

func (d *Database) ListDocumentsByApplicant(ctx context.Context, applicantID uint) ([]models.Document, error) {
	var docs []models.Document
	err := d.DB.WithContext(ctx).
		Where("applicant_id = ?", applicantID).
		Order("uploaded_at DESC").
		Find(&docs).Error
	return docs, err
}

// Chat

func (d *Database) CreateChatSession(ctx context.Context, s *models.ChatSession) error {
	return d.DB.WithContext(ctx).Create(s).Error
}

func (d *Database) GetChatSession(ctx context.Context, applicantID uint, id string) (*models.ChatSession, error) {
	var s models.ChatSession
	err := d.DB.WithContext(ctx).
		Where("id = ? AND applicant_id = ?", id, applicantID).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *Database) UpdateChatSession(ctx context.Context, s *models.ChatSession) error {
	return d.DB.WithContext(ctx).Save(s).Error
}

func (d *Database) CreateChatMessage(ctx context.Context, m *models.ChatMessage) error {
	return d.DB.WithContext(ctx).Create(m).Error
}

func (d *Database) ListChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := d.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}
