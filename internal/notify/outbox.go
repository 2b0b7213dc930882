package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Directory expands teams and roles into user IDs.
type Directory interface {
	TeamMembers(ctx context.Context, teamID string) ([]string, error)
	UsersWithRole(ctx context.Context, roles ...auth.Role) ([]string, error)
}

// Outbox stores one Notification row per recipient for in-app delivery.
type Outbox struct {
	db    *gorm.DB
	dir Directory
}

// NewOutbox creates an outbox sink. dir may be nil, in which case only
// explicit recipients are notified.
func NewOutbox(db *gorm.DB, dir Directory) *Outbox {
	return &Outbox{db: db, dir: dir}
}

func (o *Outbox) Name() string { return "outbox" }

// Notify writes the event for every distinct recipient.
func (o *Outbox) Notify(ctx context.Context, ev Event) error {
	recipients := append([]string(nil), ev.Recipients...)
	if ev.Team != "" && o.dir != nil {
		members, err := o.dir.TeamMembers(ctx, ev.Team)
		if err != nil {
			return fmt.Errorf("notify: expand team %s: %w", ev.Team, err)
		}
		recipients = append(recipients, members...)
	}
	if len(ev.Roles) > 0 && o.dir != nil {
		users, err := o.dir.UsersWithRole(ctx, ev.Roles...)
		if err != nil {
			return fmt.Errorf("notify: expand roles: %w", err)
		}
		recipients = append(recipients, users...)
	}

	payload := datatypes.JSON("null")
	if len(ev.Fields) > 0 {
		b, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("notify: marshal payload: %w", err)
		}
		payload = b
	}

	seen := make(map[string]bool)
	var rows []models.Notification
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rows = append(rows, models.Notification{
			UserID:     r,
			Title:      ev.Title,
			Body:       ev.Body,
			Kind:       ev.Kind,
			EventType:  ev.Type,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			Payload:    payload,
			CreatedAt:  ev.At,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := o.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("notify: store %d notification(s): %w", len(rows), err)
	}
	return nil
}

// Inbox returns unread notifications for a user, newest first.
func (o *Outbox) Inbox(ctx context.Context, userID string) ([]models.Notification, error) {
	if userID == "" {
		return nil, gmaoerr.Invalid("user", "user is required")
	}
	var rows []models.Notification
	err := o.db.WithContext(ctx).Where("user_id = ? AND `read` = ?", userID, false).
		Order("created_at DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notify: inbox %s: %w", userID, err)
	}
	return rows, nil
}

// Acknowledge marks one notification of the user as read.
func (o *Outbox) Acknowledge(ctx context.Context, userID string, id uint) error {
	res := o.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("notify: acknowledge %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gmaoerr.NotFound("notification", fmt.Sprint(id))
	}
	return nil
}

// AcknowledgeAll marks every notification of the user as read and returns the count.
func (o *Outbox) AcknowledgeAll(ctx context.Context, userID string) (int64, error) {
	res := o.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("notify: acknowledge all for %s: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}
