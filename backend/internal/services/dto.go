package services

import (
	"time"

	"task-tracker/backend/internal/models"

	"github.com/gofrs/uuid"
)

// Caller is the authenticated principal, resolved once by the transport layer.
type Caller struct {
	Email string
	Role  models.Role
}

type TaskToCreate struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Priority      models.Priority `json:"priority"`
	AssigneeEmail string          `json:"assignee_email"`
}

// TaskToUpdate is a patch: nil or blank fields leave the task unchanged.
type TaskToUpdate struct {
	Title         *string          `json:"title"`
	Description   *string          `json:"description"`
	Priority      *models.Priority `json:"priority"`
	Status        *models.Status   `json:"status"`
	AssigneeEmail *string          `json:"assignee_email"`
}

type TaskResponse struct {
	ID                uuid.UUID         `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Priority          models.Priority   `json:"priority"`
	Status            models.Status     `json:"status"`
	AuthorEmail       string            `json:"author_email"`
	AssigneeEmail     string            `json:"assignee_email"`
	AssigneeFirstName string            `json:"assignee_first_name"`
	AssigneeLastName  string            `json:"assignee_last_name"`
	Comments          []CommentResponse `json:"comments"`
}

type CommentResponse struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Text        string    `json:"text"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCommentResponse(c models.Comment) CommentResponse {
	return CommentResponse{
		ID:          c.ID,
		TaskID:      c.TaskID,
		Text:        c.Text,
		AuthorEmail: c.AuthorEmail,
		CreatedAt:   c.CreatedAt,
	}
}

func toTaskResponse(task models.Task, assignee *models.User) TaskResponse {
	resp := TaskResponse{
		ID:            task.ID,
		Title:         task.Title,
		Description:   task.Description,
		Priority:      task.Priority,
		Status:        task.Status,
		AuthorEmail:   task.AuthorEmail,
		AssigneeEmail: task.AssigneeEmail,
		Comments:      make([]CommentResponse, 0, len(task.Comments)),
	}
	if assignee != nil {
		resp.AssigneeFirstName = assignee.FirstName
		resp.AssigneeLastName = assignee.LastName
	}
	for _, c := range task.Comments {
		resp.Comments = append(resp.Comments, toCommentResponse(c))
	}
	return resp
}
