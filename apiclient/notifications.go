package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/freshbasket/notification-sync/model"
	"github.com/pkg/errors"
)

type statusRequest struct {
	Status model.Status `json:"status"`
}

type bulkStatusRequest struct {
	IDs    []string     `json:"ids"`
	Status model.Status `json:"status"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// GetNotifications fetches a single page of notifications. Pages are numbered from 1.
func (c *Client) GetNotifications(ctx context.Context, page int) (*model.Page, error) {
	var result model.Page
	path := fmt.Sprintf("/notification?page=%d", page)
	if err := c.doJSON(ctx, "get_notifications", http.MethodGet, path, nil, &result); err != nil {
		return nil, errors.Wrapf(err, "unable to fetch notification page %d", page)
	}
	if result.Notifications == nil {
		result.Notifications = []model.Notification{}
	}
	return &result, nil
}

// UpdateStatus changes the status of a single notification.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	path := "/notification/" + url.PathEscape(id)
	err := c.doJSON(ctx, "update_status", http.MethodPut, path, statusRequest{Status: status}, nil)
	return errors.Wrapf(err, "unable to update the status of notification %s", id)
}

// DeleteNotification deletes a single notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	path := "/notification/" + url.PathEscape(id)
	err := c.doJSON(ctx, "delete", http.MethodDelete, path, nil, nil)
	return errors.Wrapf(err, "unable to delete notification %s", id)
}

// UpdateManyStatus changes the status of several notifications at once.
func (c *Client) UpdateManyStatus(ctx context.Context, ids []string, status model.Status) error {
	body := bulkStatusRequest{IDs: ids, Status: status}
	err := c.doJSON(ctx, "update_many", http.MethodPatch, "/notification/update/many", body, nil)
	return errors.Wrapf(err, "unable to update the status of %d notifications", len(ids))
}

// DeleteMany deletes several notifications at once.
func (c *Client) DeleteMany(ctx context.Context, ids []string) error {
	body := bulkDeleteRequest{IDs: ids}
	err := c.doJSON(ctx, "delete_many", http.MethodPatch, "/notification/delete/many", body, nil)
	return errors.Wrapf(err, "unable to delete %d notifications", len(ids))
}
