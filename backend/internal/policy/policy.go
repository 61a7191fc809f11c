// Package policy decides which task and comment operations a caller may perform.
// Decisions are pure: they depend only on the caller, the target task and the action.
package policy

import "task-tracker/backend/internal/models"

type Action string

const (
	ActionCreateTask   Action = "task:create"
	ActionReadTask     Action = "task:read"
	ActionListTasks    Action = "task:list"
	ActionUpdateTask   Action = "task:update"
	ActionDeleteTask   Action = "task:delete"
	ActionCommentAny   Action = "comment:any"
	ActionUpdateStatus Action = "task:status"
	ActionCommentOwn   Action = "comment:assigned"
	ActionListOwnTasks Action = "task:list-own"
)

var adminActions = map[Action]bool{
	ActionCreateTask: true,
	ActionReadTask:   true,
	ActionListTasks:  true,
	ActionUpdateTask: true,
	ActionDeleteTask: true,
	ActionCommentAny: true,
}

var assigneeActions = map[Action]string{
	ActionUpdateStatus: "you cannot change a task you are not assigned to",
	ActionCommentOwn:   "you cannot comment on a task you are not assigned to",
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluate returns the decision for caller performing action on task. task may be nil for
// actions that do not target a single task.
//
// Admin actions require the ADMIN role. Assignee actions require the caller to be the
// task's assignee, compared by email, whatever the caller's role.
func Evaluate(caller models.User, task *models.Task, action Action) Decision {
	if caller.Email == "" {
		return deny("unknown caller")
	}

	if adminActions[action] {
		if caller.Role != models.RoleAdmin {
			return deny("admin role required")
		}
		return allow()
	}

	if reason, ok := assigneeActions[action]; ok {
		if task == nil || !task.IsAssignedTo(caller.Email) {
			return deny(reason)
		}
		return allow()
	}

	if action == ActionListOwnTasks {
		return allow()
	}

	return deny("unknown action " + string(action))
}
