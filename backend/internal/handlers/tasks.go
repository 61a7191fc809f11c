package handlers

import (
	"context"
	"net/http"

	"task-tracker/backend/internal/middleware"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskHandler struct {
	taskService    services.TaskService
	commentService services.CommentService
}

func NewTaskHandler(taskService services.TaskService, commentService services.CommentService) *TaskHandler {
	return &TaskHandler{taskService: taskService, commentService: commentService}
}

type createTaskRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	AssigneeEmail string `json:"assignee_email"`
}

type updateTaskRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Priority      *string `json:"priority"`
	Status        *string `json:"status"`
	AssigneeEmail *string `json:"assignee_email"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func pageable(c *gin.Context) repositories.Pageable {
	return repositories.NewPageable(c.Query("page"), c.Query("size"), c.Query("sortBy"), c.Query("order"))
}

// caller is set by AuthMiddleware; a missing one means the route was mounted without it.
func caller(c *gin.Context) (services.Caller, bool) {
	who, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return who, ok
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	var input createTaskRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := services.TaskToCreate{
		Title:         input.Title,
		Description:   input.Description,
		AssigneeEmail: input.AssigneeEmail,
	}
	if input.Priority != "" {
		priority, err := models.ParsePriority(input.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Priority = priority
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), who, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), who, id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	page, err := h.taskService.ListTasks(c.Request.Context(), who, pageable(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) ListByAuthor(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	page, err := h.taskService.ListByAuthor(c.Request.Context(), who, c.Param("email"), pageable(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) ListByAssignee(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	page, err := h.taskService.ListByAssignee(c.Request.Context(), who, c.Param("email"), pageable(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var input updateTaskRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := services.TaskToUpdate{
		Title:         input.Title,
		Description:   input.Description,
		AssigneeEmail: input.AssigneeEmail,
	}
	if input.Priority != nil {
		priority, err := models.ParsePriority(*input.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Priority = &priority
	}
	if input.Status != nil {
		status, err := models.ParseStatus(*input.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Status = &status
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), who, id, req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask responds with the task as it was before deletion.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.DeleteTask(c.Request.Context(), who, id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) AddComment(c *gin.Context) {
	h.addComment(c, h.commentService.AddComment)
}

func (h *TaskHandler) AddAssigneeComment(c *gin.Context) {
	h.addComment(c, h.commentService.AddAssigneeComment)
}

func (h *TaskHandler) addComment(c *gin.Context, add func(context.Context, services.Caller, uuid.UUID, string) (*services.CommentResponse, error)) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var input commentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := add(c.Request.Context(), who, id, input.Text)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *TaskHandler) ListOwnTasks(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}

	page, err := h.taskService.ListOwnTasks(c.Request.Context(), who, pageable(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// UpdateStatus reads the new status from the "status" query parameter. The service checks
// it, after the task lookup and the assignee check.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	status := models.NormalizeStatus(c.Query("status"))
	task, err := h.taskService.UpdateStatus(c.Request.Context(), who, id, status)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
