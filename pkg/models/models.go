package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role is the authorization role carried by every user and session token.
type Role string

const (
	RoleAdvocate  Role = "advocate"
	RoleParalegal Role = "paralegal"
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdvocate:
		return RoleAdvocate, nil
	case RoleParalegal:
		return RoleParalegal, nil
	default:
		return "", ErrUnknownRole
	}
}

// Work statuses shared by cases and tasks.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
)

func ValidWorkStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// User is an identity record. The password hash never serializes.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is an uploaded file attached to a case. The bytes live in the
// blob store under StorageKey; URL is the download path served to clients.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"-"`
	URL        string    `json:"url"`
	Mimetype   string    `json:"mimetype"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Comment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Case struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	Documents   []Document `json:"documents"`
	Comments    []Comment  `json:"comments"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

const MinPasswordLength = 6

// ValidateCaseInput enforces the field constraints on case writes.
func ValidateCaseInput(title, description, status string) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if n := len(title); n < 3 || n > 200 {
		return errors.New("title must be 3-200 characters")
	}
	if n := len(description); n < 10 || n > 2000 {
		return errors.New("description must be 10-2000 characters")
	}
	if status != "" && !ValidWorkStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	return nil
}

func ValidateTaskInput(title, description, status string) error {
	title = strings.TrimSpace(title)
	if n := len(title); n < 3 || n > 200 {
		return errors.New("title must be 3-200 characters")
	}
	if len(strings.TrimSpace(description)) > 1000 {
		return errors.New("description must be at most 1000 characters")
	}
	if status != "" && !ValidWorkStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	return nil
}

func ValidateClientInput(name, contact string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(contact) == "" {
		return errors.New("name and contact are required")
	}
	return nil
}

const MaxCommentLength = 1000

func ValidateCommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("comment text required")
	}
	if len(text) > MaxCommentLength {
		return "", fmt.Errorf("comment must be at most %d characters", MaxCommentLength)
	}
	return text, nil
}
