// Package taskstore reads and updates the externally owned task document:
// a JSON file of named tag groups, each holding an ordered task list. The
// engine writes back only subtasks and statuses; everything else belongs
// to the external tool that maintains the file.
package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/logging"
)

// fallbackTag is consulted when the requested tag group is absent.
const fallbackTag = "master"

// legacyTasksKey marks the untagged object form {"tasks": [...]}.
const legacyTasksKey = "tasks"

// Client is a file-backed task document client. Reads degrade to empty
// lists when the document is missing or unparseable; writes refuse to
// touch a document they could not fully parse.
type Client struct {
	path string
	log  *logging.Logger
}

// NewClient creates a client for the task document at path.
func NewClient(path string, log *logging.Logger) *Client {
	return &Client{path: path, log: log}
}

// Path returns the task document location.
func (c *Client) Path() string {
	return c.path
}

// tagGroup is one named task list plus whatever metadata the external
// tool keeps alongside it. Fields beyond these two are not preserved
// when the group is rewritten.
type tagGroup struct {
	Tasks    []domain.Task   `json:"tasks"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// document holds a parsed task file. The object form keeps sibling tag
// groups as raw bytes so an update to one tag rewrites only that tag.
type document struct {
	array   bool
	tasks   []domain.Task              // array form only
	members map[string]json.RawMessage // object form only
}

// Load returns the tag's task list, falling back to the "master" tag and
// then the legacy untagged forms. A missing or unparseable document and
// an unknown tag all read as empty — absent task input is never fatal.
func (c *Client) Load(ctx context.Context, tag string) ([]domain.Task, error) {
	doc, err := c.read()
	if err != nil {
		if isDegradable(err) {
			c.log.Warn(ctx, "task document unreadable, treating as empty",
				zap.String("path", c.path), zap.Error(err))
			return []domain.Task{}, nil
		}
		return nil, err
	}

	tasks, _, found, err := doc.taskList(tag)
	if err != nil {
		c.log.Warn(ctx, "task document unparseable, treating as empty",
			zap.String("path", c.path), zap.Error(err))
		return []domain.Task{}, nil
	}
	if !found {
		return []domain.Task{}, nil
	}
	return tasks, nil
}

// ApplySubtasks attaches subtasks to the task with taskID under tag.
// A task that already has subtasks is refused with ErrSubtaskConflict
// unless force is set, in which case the existing subtasks are replaced.
func (c *Client) ApplySubtasks(ctx context.Context, tag string, taskID int, subs []domain.Subtask, force bool) error {
	return c.update(ctx, tag, taskID, func(task *domain.Task) error {
		if len(task.Subtasks) > 0 && !force {
			return domain.ErrSubtaskConflict
		}
		task.Subtasks = append([]domain.Subtask{}, subs...)
		return nil
	})
}

// SetTaskStatus updates the status of the task with taskID under tag.
func (c *Client) SetTaskStatus(ctx context.Context, tag string, taskID int, status domain.TaskStatus) error {
	if !validStatus(status) {
		return domain.ErrInvalidStatus
	}
	return c.update(ctx, tag, taskID, func(task *domain.Task) error {
		task.Status = status
		return nil
	})
}

// SetSubtaskStatus updates the status of one subtask of the task with
// taskID under tag.
func (c *Client) SetSubtaskStatus(ctx context.Context, tag string, taskID, subtaskID int, status domain.TaskStatus) error {
	if !validStatus(status) {
		return domain.ErrInvalidStatus
	}
	return c.update(ctx, tag, taskID, func(task *domain.Task) error {
		for i := range task.Subtasks {
			if task.Subtasks[i].ID == subtaskID {
				task.Subtasks[i].Status = status
				return nil
			}
		}
		return domain.ErrSubtaskNotFound
	})
}

// update reads the document, applies mutate to the matching task, and
// writes the document back in its original form.
func (c *Client) update(ctx context.Context, tag string, taskID int, mutate func(*domain.Task) error) error {
	doc, err := c.read()
	if err != nil {
		return err
	}

	tasks, writeKey, found, err := doc.taskList(tag)
	if err != nil {
		return domain.WrapEngineError(domain.ErrTaskFileCorrupt.Code, domain.ErrTaskFileCorrupt.Message, err)
	}
	if !found {
		return domain.ErrTagNotFound
	}

	idx := -1
	for i := range tasks {
		if tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrTaskNotFound
	}

	if err := mutate(&tasks[idx]); err != nil {
		return err
	}

	if err := doc.setTaskList(writeKey, tasks); err != nil {
		return fmt.Errorf("encoding task list: %w", err)
	}
	if err := c.write(doc); err != nil {
		return err
	}
	c.log.Debug(ctx, "task document updated",
		zap.String("tag", tag), zap.Int("task_id", taskID))
	return nil
}

// read parses the task document. A missing file parses as an empty
// object document; malformed JSON is reported as ErrTaskFileCorrupt.
func (c *Client) read() (*document, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{members: map[string]json.RawMessage{}}, nil
		}
		return nil, fmt.Errorf("reading task document: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tasks []domain.Task
		if err := json.Unmarshal(data, &tasks); err != nil {
			return nil, domain.WrapEngineError(domain.ErrTaskFileCorrupt.Code, domain.ErrTaskFileCorrupt.Message, err)
		}
		return &document{array: true, tasks: tasks}, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, domain.WrapEngineError(domain.ErrTaskFileCorrupt.Code, domain.ErrTaskFileCorrupt.Message, err)
	}
	return &document{members: members}, nil
}

// write serializes the document back to disk. Writers of this file do
// not coordinate; the last writer wins.
func (c *Client) write(doc *document) error {
	var (
		data []byte
		err  error
	)
	if doc.array {
		data, err = json.MarshalIndent(doc.tasks, "", "  ")
	} else {
		data, err = json.MarshalIndent(doc.members, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling task document: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing task document: %w", err)
	}
	return nil
}

// taskList resolves a tag to its task list. Resolution order: the named
// tag, then "master", then the legacy {"tasks": [...]} form, then the
// bare array form. writeKey tells setTaskList where updates go.
func (d *document) taskList(tag string) (tasks []domain.Task, writeKey string, found bool, err error) {
	if d.array {
		return d.tasks, "", true, nil
	}

	for _, key := range []string{tag, fallbackTag} {
		raw, ok := d.members[key]
		if !ok {
			continue
		}
		var group tagGroup
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, "", false, fmt.Errorf("parsing tag group %q: %w", key, err)
		}
		return group.Tasks, key, true, nil
	}

	if raw, ok := d.members[legacyTasksKey]; ok {
		var tasks []domain.Task
		if err := json.Unmarshal(raw, &tasks); err != nil {
			return nil, "", false, fmt.Errorf("parsing legacy task list: %w", err)
		}
		return tasks, legacyTasksKey, true, nil
	}

	return nil, "", false, nil
}

// setTaskList stores an updated task list back into the document slot
// identified by writeKey.
func (d *document) setTaskList(writeKey string, tasks []domain.Task) error {
	if d.array {
		d.tasks = tasks
		return nil
	}

	if writeKey == legacyTasksKey {
		raw, err := json.Marshal(tasks)
		if err != nil {
			return err
		}
		d.members[legacyTasksKey] = raw
		return nil
	}

	var group tagGroup
	if raw, ok := d.members[writeKey]; ok {
		// Tolerate a stale parse failure here; taskList already vetted it.
		_ = json.Unmarshal(raw, &group)
	}
	group.Tasks = tasks
	raw, err := json.Marshal(group)
	if err != nil {
		return err
	}
	d.members[writeKey] = raw
	return nil
}

func validStatus(status domain.TaskStatus) bool {
	switch status {
	case domain.TaskPending, domain.TaskInProgress, domain.TaskDone:
		return true
	}
	return false
}

// isDegradable reports whether a read error should downgrade to an empty
// task list instead of propagating.
func isDegradable(err error) bool {
	var engineErr *domain.EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code == domain.ErrTaskFileCorrupt.Code
	}
	return false
}
