package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, reference_table, reference_uid, reference_workspace, queued_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (Item, error) {
	var (
		item      Item
		workspace sql.NullInt64
		queuedRaw sql.NullString
	)
	if err := scanner.Scan(&item.ID, &item.Key.Table, &item.Key.UID, &workspace, &queuedRaw); err != nil {
		return Item{}, err
	}
	item.Key.Workspace = workspace.Int64
	if queued, err := parseTimeString(queuedRaw.String); err == nil {
		item.QueuedAt = queued
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
