package models

import "time"

// NotificationType categorises in-app notices.
type NotificationType string

const (
	NotificationClearanceStatus  NotificationType = "clearance_status"
	NotificationNewRequest       NotificationType = "new_request"
	NotificationApprovalRequired NotificationType = "approval_required"
)

// NotificationStatus is the read state of a notice.
type NotificationStatus string

const (
	NotificationUnread NotificationStatus = "unread"
	NotificationRead   NotificationStatus = "read"
)

// Notification is an in-app notice for one user.
type Notification struct {
	ID             string             `db:"id" json:"id"`
	UserID         string             `db:"user_id" json:"user_id"`
	Message        string             `db:"message" json:"message"`
	Type           NotificationType   `db:"type" json:"type"`
	Status         NotificationStatus `db:"status" json:"status"`
	RelatedRequest *string            `db:"related_request" json:"related_request,omitempty"`
	ReadAt         *time.Time         `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a user's notification list.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
