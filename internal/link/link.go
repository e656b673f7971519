// Package link builds deep links and share text for tasks.
package link

import (
	"fmt"
	"net/url"
	"strings"
)

// OpenTaskParam is the query parameter that asks the board to open a task's
// detail view.
const OpenTaskParam = "openTask"

// OpenTaskURL adds openTask=<id> to base, keeping any other query values.
func OpenTaskURL(base, taskID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	q := u.Query()
	q.Set(OpenTaskParam, taskID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConsumeOpenTask reads and strips the openTask parameter. stripped is the
// URL without it; taskID is empty when the parameter is absent.
func ConsumeOpenTask(raw string) (taskID, stripped string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw, fmt.Errorf("failed to parse url: %w", err)
	}
	q := u.Query()
	taskID = q.Get(OpenTaskParam)
	if !q.Has(OpenTaskParam) {
		return "", raw, nil
	}
	q.Del(OpenTaskParam)
	u.RawQuery = q.Encode()
	return taskID, u.String(), nil
}

// ShareText is the message copied to the clipboard when sharing a task.
func ShareText(title, origin, path, taskID string) string {
	return fmt.Sprintf("Check out this task in Project Pilot: %s\n\n%s%s#task-%s",
		title, strings.TrimRight(origin, "/"), path, taskID)
}
