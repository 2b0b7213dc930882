// Package media attaches evidence files to answers. Binaries go to a blob
// store and only metadata is kept in the database.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/blob"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/observability"
	"github.com/yazid-hub/GMOA/internal/report"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Upload describes one file to attach.
type Upload struct {
	Kind    string
	Name    string
	Caption string
	// Size is the declared size in bytes, or -1 when unknown.
	Size int64
	Body io.Reader
}

// Service validates and stores attachments.
type Service struct {
	db       *gorm.DB
	gate     *auth.Gate
	store    blob.Store
	clock    clock.Clock
	workflow config.WorkflowConfig
	log      *zap.Logger
}

// NewService creates a media service.
func NewService(db *gorm.DB, gate *auth.Gate, store blob.Store, clk clock.Clock, workflow config.WorkflowConfig, log *zap.Logger) *Service {
	return &Service{db: db, gate: gate, store: store, clock: clk, workflow: workflow, log: logging.OrNop(log)}
}

type target struct {
	answer *models.Answer
	point  *models.CheckPoint
	report *models.ExecutionReport
	order  *models.WorkOrder
}

// Attach stores up.Body and records its metadata against the answer. The
// blob is written first; if the metadata insert fails the blob is removed.
func (s *Service) Attach(ctx context.Context, actor auth.Actor, answerID uint, up Upload) (att *models.MediaAttachment, err error) {
	ctx, span := observability.Start(ctx, "media.Attach",
		attribute.Int("answer.id", int(answerID)), attribute.String("media.kind", up.Kind))
	defer func() { observability.End(span, err) }()

	tg, err := s.resolve(ctx, actor, answerID, "attach media")
	if err != nil {
		return nil, err
	}
	if err := Check(tg.point, up.Kind, up.Name, up.Size); err != nil {
		metrics.MediaStored.WithLabelValues(up.Kind, "rejected").Inc()
		return nil, err
	}

	key := fmt.Sprintf("%s/%d/%s", tg.report.ID, answerID, uuid.NewString())
	if ext := Extension(up.Name); ext != "" {
		key += "." + ext
	}

	hash := sha256.New()
	body := io.TeeReader(up.Body, hash)
	if limit := maxBytes(tg.point); limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	n, err := s.store.Put(ctx, key, body)
	if err != nil {
		metrics.MediaStored.WithLabelValues(up.Kind, "failed").Inc()
		return nil, fmt.Errorf("media: store %s: %w", key, err)
	}
	if err := Check(tg.point, up.Kind, up.Name, n); err != nil {
		s.discard(ctx, key, "oversized upload")
		metrics.MediaStored.WithLabelValues(up.Kind, "rejected").Inc()
		return nil, err
	}

	att = &models.MediaAttachment{
		AnswerID:     answerID,
		Kind:         up.Kind,
		StorageKey:   key,
		OriginalName: up.Name,
		SizeBytes:    n,
		SHA256:       hex.EncodeToString(hash.Sum(nil)),
		Caption:      up.Caption,
		UploadedBy:   actor.ID,
		UploadedAt:   s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The report may have been finalized while the blob was uploading.
		var rep models.ExecutionReport
		if err := tx.Where("id = ?", tg.report.ID).First(&rep).Error; err != nil {
			return fmt.Errorf("media: reload report %s: %w", tg.report.ID, err)
		}
		if !report.Mutable(&rep) {
			return gmaoerr.InvalidState("report", rep.ID, rep.Status, "attach media")
		}
		if err := tx.Create(att).Error; err != nil {
			return fmt.Errorf("media: record %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("media metadata write failed, removing blob", zap.String("key", key), zap.Error(err))
		s.discard(ctx, key, "metadata write failed")
		metrics.MediaStored.WithLabelValues(up.Kind, "failed").Inc()
		return nil, err
	}

	metrics.MediaStored.WithLabelValues(up.Kind, "stored").Inc()
	metrics.MediaBytes.Observe(float64(n))
	return att, nil
}

// Remove deletes an attachment's metadata and then its blob. A blob that
// cannot be deleted is logged and left behind.
func (s *Service) Remove(ctx context.Context, actor auth.Actor, mediaID uint) error {
	var att models.MediaAttachment
	if err := s.db.WithContext(ctx).Where("id = ?", mediaID).First(&att).Error; err != nil {
		return notFound(err, "media", fmt.Sprint(mediaID))
	}
	if _, err := s.resolve(ctx, actor, att.AnswerID, "remove media"); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.MediaAttachment{}, mediaID).Error; err != nil {
		return fmt.Errorf("media: delete %d: %w", mediaID, err)
	}
	s.discard(ctx, att.StorageKey, "attachment removed")
	return nil
}

// List returns the attachments of an answer.
func (s *Service) List(ctx context.Context, answerID uint) ([]models.MediaAttachment, error) {
	var out []models.MediaAttachment
	if err := s.db.WithContext(ctx).Where("answer_id = ?", answerID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("media: list for answer %d: %w", answerID, err)
	}
	return out, nil
}

// Open returns the attachment metadata and a reader over its binary.
func (s *Service) Open(ctx context.Context, mediaID uint) (*models.MediaAttachment, io.ReadCloser, error) {
	var att models.MediaAttachment
	if err := s.db.WithContext(ctx).Where("id = ?", mediaID).First(&att).Error; err != nil {
		return nil, nil, notFound(err, "media", fmt.Sprint(mediaID))
	}
	rc, err := s.store.Get(ctx, att.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, gmaoerr.NotFound("media blob", att.StorageKey)
		}
		return nil, nil, err
	}
	return &att, rc, nil
}

// resolve loads the answer chain and checks the actor may modify it.
func (s *Service) resolve(ctx context.Context, actor auth.Actor, answerID uint, op string) (*target, error) {
	db := s.db.WithContext(ctx)
	tg := &target{answer: &models.Answer{}, point: &models.CheckPoint{}, report: &models.ExecutionReport{}, order: &models.WorkOrder{}}
	if err := db.Where("id = ?", answerID).First(tg.answer).Error; err != nil {
		return nil, notFound(err, "answer", fmt.Sprint(answerID))
	}
	if err := db.Where("id = ?", tg.answer.CheckPointID).First(tg.point).Error; err != nil {
		return nil, notFound(err, "check point", fmt.Sprint(tg.answer.CheckPointID))
	}
	if err := db.Where("id = ?", tg.answer.ReportID).First(tg.report).Error; err != nil {
		return nil, notFound(err, "report", tg.answer.ReportID)
	}
	if err := db.Where("id = ?", tg.report.WorkOrderID).First(tg.order).Error; err != nil {
		return nil, notFound(err, "work order", tg.report.WorkOrderID)
	}
	if err := s.gate.RequireExecute(ctx, actor, tg.order, op); err != nil {
		return nil, err
	}
	if s.workflow.IsFinal(tg.order.Status) {
		return nil, gmaoerr.InvalidState("work order", tg.order.ID, tg.order.Status, op)
	}
	if !report.Mutable(tg.report) {
		return nil, gmaoerr.InvalidState("report", tg.report.ID, tg.report.Status, op)
	}
	return tg, nil
}

func (s *Service) discard(ctx context.Context, key, reason string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.log.Warn("orphaned media blob", zap.String("key", key), zap.String("reason", reason), zap.Error(err))
	}
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gmaoerr.NotFound(entity, id)
	}
	return fmt.Errorf("media: get %s %s: %w", entity, id, err)
}
