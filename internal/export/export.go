// Package export builds an encrypted emergency care file for a
// recipient and uploads it to S3-compatible storage. The file is a
// JSON snapshot a family can hand to an ER or a temporary caregiver:
// who is scheduled next week, what medications are active, and what
// was recently given.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/store"
)

const (
	shiftWindowDays = 7
	logWindowDays   = 7
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// CareFile is the exported snapshot. Timestamps are UTC.
type CareFile struct {
	GeneratedAt       time.Time              `json:"generated_at"`
	Recipient         *model.CareRecipient   `json:"recipient"`
	UpcomingShifts    []model.Shift          `json:"upcoming_shifts"`
	ActiveMedications []model.Medication     `json:"active_medications"`
	RecentLogs        []model.MedicationLog  `json:"recent_logs"`
	ActiveAlerts      []model.EmergencyAlert `json:"active_alerts"`
}

// Result describes a completed export.
type Result struct {
	Key         string    `json:"key"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Exporter assembles, encrypts and uploads care files.
type Exporter struct {
	cfg    S3Config
	guard  *access.Guard
	shifts *store.ShiftStore
	meds   *store.MedicationStore
	alerts *store.AlertStore
	client s3Client
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. With incomplete S3 configuration it
// stays disabled and Run fails cleanly.
func NewExporter(cfg S3Config, guard *access.Guard, shifts *store.ShiftStore, meds *store.MedicationStore, alerts *store.AlertStore, logger *slog.Logger) *Exporter {
	e := &Exporter{
		cfg:    cfg,
		guard:  guard,
		shifts: shifts,
		meds:   meds,
		alerts: alerts,
		logger: logger,
		now:    time.Now,
	}
	if cfg.configured() {
		e.client = newS3Client(cfg)
	}
	return e
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the exporter has usable S3 configuration.
func (e *Exporter) Enabled() bool {
	return e.client != nil
}

// Run builds the care file, encrypts it with a key derived from the
// caller's passphrase, and uploads it. The passphrase is never stored;
// losing it makes the export unreadable.
func (e *Exporter) Run(ctx context.Context, principal model.Principal, careRecipientID int64, passphrase string) (*Result, error) {
	if e.client == nil {
		return nil, fmt.Errorf("export not configured: S3 credentials missing")
	}
	if len(strings.TrimSpace(passphrase)) < 8 {
		return nil, &care.ValidationError{Field: "passphrase", Reason: "must be at least 8 characters"}
	}

	grant, err := e.guard.Authorize(principal, careRecipientID, access.CapExportCareFile)
	if err != nil {
		return nil, err
	}

	file, err := e.buildCareFile(grant.Recipient)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal care file: %w", err)
	}

	encrypted, err := Encrypt(plaintext, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt care file: %w", err)
	}

	key := fmt.Sprintf("%s/%d/%d/%s.json.enc", e.cfg.Prefix, grant.Recipient.FamilyID, careRecipientID, uuid.NewString())

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.cfg.Bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(string(encrypted)),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload care file: %w", err)
	}

	e.logger.Info("care file exported",
		"care_recipient_id", careRecipientID,
		"key", key,
		"size_bytes", len(encrypted),
		"exported_by", principal.UserID)

	return &Result{Key: key, SizeBytes: int64(len(encrypted)), GeneratedAt: file.GeneratedAt}, nil
}

func (e *Exporter) buildCareFile(recipient *model.CareRecipient) (*CareFile, error) {
	now := e.now().UTC()

	shifts, err := e.shifts.ListByRecipientRange(recipient.ID, now, now.AddDate(0, 0, shiftWindowDays))
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}

	meds, err := e.meds.ListByRecipient(recipient.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}

	logs, err := e.meds.ListLogsForSlots(recipient.ID, now.AddDate(0, 0, -logWindowDays), now)
	if err != nil {
		return nil, fmt.Errorf("list medication logs: %w", err)
	}

	alerts, err := e.alerts.ListActive(recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	return &CareFile{
		GeneratedAt:       now,
		Recipient:         recipient,
		UpcomingShifts:    shifts,
		ActiveMedications: meds,
		RecentLogs:        logs,
		ActiveAlerts:      alerts,
	}, nil
}
