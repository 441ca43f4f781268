package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mrlokans/librarian/internal/entities"
)

const maxDetailLength = 500

// Journal records completed loan workflow transitions and reconciliation
// flags, one JSON file per event. It implements services.LoanRecorder.
type Journal struct {
	auditor *Auditor
}

// NewJournal creates a journal writing into dir.
func NewJournal(dir string) *Journal {
	return &Journal{auditor: NewAuditor(dir)}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.auditor.AuditDir
}

// RecordLoanEvent writes event to the journal, assigning an ID and a
// timestamp when they are missing.
func (j *Journal) RecordLoanEvent(event entities.LoanEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Detail = truncate(event.Detail, maxDetailLength)

	// Timestamp first so that a directory listing is in journal order.
	name := fmt.Sprintf("%s-%s-%s", event.CreatedAt.UTC().Format("20060102T150405.000000Z"), event.Action, event.ID)
	if _, err := j.auditor.SaveJSON(name, event); err != nil {
		log.Printf("Failed to write %s audit event: %v", event.Action, err)
		return err
	}
	return nil
}

// Events reads the whole journal, oldest first.
func (j *Journal) Events() ([]entities.LoanEvent, error) {
	var events []entities.LoanEvent
	err := j.auditor.LoadJSON(func(filename string, data []byte) error {
		var event entities.LoanEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("failed to decode audit file %s: %w", filename, err)
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(a, b int) bool {
		if !events[a].CreatedAt.Equal(events[b].CreatedAt) {
			return events[a].CreatedAt.Before(events[b].CreatedAt)
		}
		return events[a].ID < events[b].ID
	})
	return events, nil
}

// EventsByAction returns the journal entries with action, oldest first.
func (j *Journal) EventsByAction(action entities.LoanAction) ([]entities.LoanEvent, error) {
	events, err := j.Events()
	if err != nil {
		return nil, err
	}
	matching := make([]entities.LoanEvent, 0, len(events))
	for _, e := range events {
		if e.Action == action {
			matching = append(matching, e)
		}
	}
	return matching, nil
}

// truncate shortens a string to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
