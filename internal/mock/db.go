package mock

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/tasklane/tasklane/internal/model"
)

// DefaultPassword is a password that passes registration rules.
const DefaultPassword = "correct-horse-battery"

func createUUID() string {
	id, _ := uuid.NewV4()
	return id.String()
}

// NewUser returns an unsaved user with a fresh ID and no credentials.
func NewUser(name string) *model.User {
	return &model.User{
		ID:    createUUID(),
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", strings.ToLower(strings.ReplaceAll(name, " ", "."))),
	}
}

// NewTask returns an unsaved pending task owned by userID.
func NewTask(userID, title string, order int) *model.Task {
	return &model.Task{
		ID:          createUUID(),
		Title:       title,
		Description: title + " description",
		Status:      model.TaskStatusPending,
		UserID:      userID,
		Order:       order,
	}
}
