package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleUser
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
)

var statuses = []Status{StatusPending, StatusInProgress, StatusDone, StatusCancelled}

func (s Status) IsValid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

// NormalizeStatus upper-cases s without checking it against the known statuses.
func NormalizeStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseStatus accepts any letter case, e.g. "in_progress".
func ParseStatus(s string) (Status, error) {
	status := NormalizeStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) IsValid() bool {
	for _, v := range priorities {
		if p == v {
			return true
		}
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	priority := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !priority.IsValid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return priority, nil
}
