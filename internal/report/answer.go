package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/checklist"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one value submitted by autosave.
type Entry struct {
	CheckPointID uint
	Value        string
}

// UpsertAnswer records the value of a check point. The value must match the
// field type and the point must be visible given the answers so far.
// Repeated calls for the same point keep a single row with the latest value.
func (s *Service) UpsertAnswer(ctx context.Context, actor auth.Actor, reportID string, pointID uint, value string) (ans *models.Answer, err error) {
	ctx, span := observability.Start(ctx, "report.UpsertAnswer",
		attribute.String("report.id", reportID), attribute.Int("check_point.id", int(pointID)))
	defer func() { observability.End(span, err) }()

	if err = s.authorize(ctx, actor, reportID, "answer"); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rep, wo, err := s.loadMutable(tx, reportID, "answer")
		if err != nil {
			return err
		}
		tpl, err := checklist.Load(tx, wo.TemplateID)
		if err != nil {
			return err
		}
		values, err := Values(tx, rep.ID)
		if err != nil {
			return err
		}
		ans, err = s.apply(tx, actor, rep.ID, tpl, values, pointID, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.AnswersSaved.WithLabelValues("submit").Inc()
	return ans, nil
}

// AutosaveDraft upserts a batch of values without required-field checks.
// Entries are applied in template order so parents resolve before their
// children; empty values are skipped. Valid entries are saved even when
// others fail, and every failure is returned joined.
func (s *Service) AutosaveDraft(ctx context.Context, actor auth.Actor, reportID string, entries []Entry) (saved int, err error) {
	ctx, span := observability.Start(ctx, "report.AutosaveDraft",
		attribute.String("report.id", reportID), attribute.Int("entries", len(entries)))
	defer func() { observability.End(span, err) }()

	var entryErrs []error
	if err = s.authorize(ctx, actor, reportID, "autosave"); err != nil {
		return 0, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rep, wo, err := s.loadMutable(tx, reportID, "autosave")
		if err != nil {
			return err
		}
		tpl, err := checklist.Load(tx, wo.TemplateID)
		if err != nil {
			return err
		}
		values, err := Values(tx, rep.ID)
		if err != nil {
			return err
		}

		rank := templateRank(tpl)
		ordered := append([]Entry(nil), entries...)
		sort.SliceStable(ordered, func(i, j int) bool {
			return rankOf(rank, ordered[i].CheckPointID) < rankOf(rank, ordered[j].CheckPointID)
		})

		for _, e := range ordered {
			if e.Value == "" {
				continue
			}
			if _, err := s.apply(tx, actor, rep.ID, tpl, values, e.CheckPointID, e.Value); err != nil {
				if !isEntryError(err) {
					return err
				}
				entryErrs = append(entryErrs, err)
				continue
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.AnswersSaved.WithLabelValues("autosave").Add(float64(saved))
	if len(entryErrs) > 0 {
		s.log.Debug("autosave rejected entries", zap.String("report", reportID), zap.Int("rejected", len(entryErrs)))
		return saved, errors.Join(entryErrs...)
	}
	return saved, nil
}

// apply validates and upserts one value, updating values in place.
func (s *Service) apply(tx *gorm.DB, actor auth.Actor, reportID string, tpl *models.ChecklistTemplate, values map[uint]string, pointID uint, value string) (*models.Answer, error) {
	p, _ := checklist.FindPoint(tpl, pointID)
	if p == nil {
		return nil, gmaoerr.Invalid("check_point", "check point %d is not part of template %s", pointID, tpl.ID)
	}
	normalized, err := checklist.NormalizeValue(p, value)
	if err != nil {
		return nil, err
	}
	if !checklist.NewVisibility(tpl, values).Visible(pointID) {
		return nil, &gmaoerr.HiddenCheckPointError{CheckPointID: pointID}
	}
	ans, err := upsert(tx, reportID, pointID, normalized, actor.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	values[pointID] = normalized
	return ans, nil
}

// upsert writes the answer keyed on (report_id, check_point_id) in one statement.
func upsert(tx *gorm.DB, reportID string, pointID uint, value, actorID string, now time.Time) (*models.Answer, error) {
	row := models.Answer{
		ReportID:     reportID,
		CheckPointID: pointID,
		Value:        value,
		AnsweredBy:   actorID,
		AnsweredAt:   now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_id"}, {Name: "check_point_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "answered_by", "answered_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("report: upsert answer %s/%d: %w", reportID, pointID, err)
	}
	var ans models.Answer
	if err := tx.Where("report_id = ? AND check_point_id = ?", reportID, pointID).First(&ans).Error; err != nil {
		return nil, fmt.Errorf("report: reload answer %s/%d: %w", reportID, pointID, err)
	}
	return &ans, nil
}

// isEntryError reports whether err concerns a single autosave entry rather
// than the whole batch.
func isEntryError(err error) bool {
	return errors.Is(err, gmaoerr.ErrValidation)
}

func templateRank(tpl *models.ChecklistTemplate) map[uint]int {
	rank := make(map[uint]int)
	i := 0
	for _, op := range tpl.Operations {
		for _, p := range op.CheckPoints {
			rank[p.ID] = i
			i++
		}
	}
	return rank
}

func rankOf(rank map[uint]int, id uint) int {
	if r, ok := rank[id]; ok {
		return r
	}
	return len(rank)
}
