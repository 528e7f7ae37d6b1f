// Package reconciler bridges imperative notification operations to the admin API.
//
// Write operations never touch the store. The server confirms each change with an event that the
// session's handlers apply, so there is a window between a successful call and the matching
// change in the store.
package reconciler

import (
	"context"

	"github.com/freshbasket/notification-sync/logging"
	"github.com/freshbasket/notification-sync/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.Log.WithField("package", "reconciler")

// API describes the admin API operations used by the reconciler.
type API interface {
	GetNotifications(ctx context.Context, page int) (*model.Page, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	DeleteNotification(ctx context.Context, id string) error
	UpdateManyStatus(ctx context.Context, ids []string, status model.Status) error
	DeleteMany(ctx context.Context, ids []string) error
}

// PageLoader describes the store operations used by the reconciler.
type PageLoader interface {
	LoadPage(page int, notifications []model.Notification, totalUnread, totalDoc int64)
	BeginLoad()
	EndLoad()
}

// Validation errors.
var (
	ErrMissingID     = errors.New("a notification ID is required")
	ErrMissingIDs    = errors.New("at least one notification ID is required")
	ErrMissingStatus = errors.New("a status is required")
	ErrInvalidPage   = errors.New("page numbers start at 1")
)

// Reconciler issues notification operations against the admin API.
type Reconciler struct {
	api   API
	store PageLoader
}

// New returns a new reconciler.
func New(api API, store PageLoader) *Reconciler {
	return &Reconciler{api: api, store: store}
}

// LoadNotifications fetches a page of notifications and loads it into the store. The first page
// replaces the store's contents. If the fetch fails the store is left as it was; the error is
// logged and returned.
func (r *Reconciler) LoadNotifications(ctx context.Context, page int) error {
	if page < 1 {
		return ErrInvalidPage
	}

	r.store.BeginLoad()
	defer r.store.EndLoad()

	result, err := r.api.GetNotifications(ctx, page)
	if err != nil {
		log.WithError(err).WithField("page", page).Error("error loading notifications")
		return err
	}

	r.store.LoadPage(page, result.Notifications, result.TotalUnreadDoc, result.TotalDoc)
	log.WithFields(logrus.Fields{
		"page":        page,
		"count":       len(result.Notifications),
		"totalUnread": result.TotalUnreadDoc,
		"totalDoc":    result.TotalDoc,
	}).Debug("loaded notifications")
	return nil
}

// UpdateStatus changes the status of a single notification.
func (r *Reconciler) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if id == "" {
		return ErrMissingID
	}
	if status == "" {
		return ErrMissingStatus
	}

	if err := r.api.UpdateStatus(ctx, id, status); err != nil {
		log.WithError(err).WithField("id", id).Error("error updating notification status")
		return err
	}
	return nil
}

// DeleteNotification deletes a single notification.
func (r *Reconciler) DeleteNotification(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}

	if err := r.api.DeleteNotification(ctx, id); err != nil {
		log.WithError(err).WithField("id", id).Error("error deleting notification")
		return err
	}
	return nil
}

// UpdateMany changes the status of several notifications.
func (r *Reconciler) UpdateMany(ctx context.Context, ids []string, status model.Status) error {
	if len(ids) == 0 {
		return ErrMissingIDs
	}
	if status == "" {
		return ErrMissingStatus
	}

	if err := r.api.UpdateManyStatus(ctx, ids, status); err != nil {
		log.WithError(err).WithField("count", len(ids)).Error("error updating multiple notifications")
		return err
	}
	return nil
}

// DeleteMany deletes several notifications.
func (r *Reconciler) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrMissingIDs
	}

	if err := r.api.DeleteMany(ctx, ids); err != nil {
		log.WithError(err).WithField("count", len(ids)).Error("error deleting multiple notifications")
		return err
	}
	return nil
}
