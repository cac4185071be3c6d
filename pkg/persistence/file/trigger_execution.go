package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerExecutionRepository stores records under
// trigger_executions/{trigger_id}/{record_id}.json.
type TriggerExecutionRepository struct {
	root string
	mu   *sync.Mutex
}

func (r *TriggerExecutionRepository) records(triggerID string) jsonDir {
	return jsonDir{root: filepath.Join(r.root, "trigger_executions"), name: triggerID}
}

func (r *TriggerExecutionRepository) triggers() *TriggerRepository {
	return &TriggerRepository{dir: jsonDir{root: r.root, name: "triggers"}, mu: r.mu}
}

func (r *TriggerExecutionRepository) Record(_ context.Context, record *models.TriggerExecutionRecord) (*persistence.RecordOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	triggers := r.triggers()

	trigger, err := triggers.get(record.TriggerID)
	if err != nil {
		return nil, err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	records := r.records(record.TriggerID)

	// A retried activity may record the same execution twice. Only the
	// first write moves the failure counter.
	var existing models.TriggerExecutionRecord

	found, err := records.read(record.ID, &existing)
	if err != nil {
		return nil, persistence.NewRepositoryError("Record", "trigger execution", record.ID, err)
	}

	if found {
		return &persistence.RecordOutcome{Trigger: trigger}, nil
	}

	if err := records.write(record.ID, record); err != nil {
		return nil, persistence.NewRepositoryError("Record", "trigger execution", record.ID, err)
	}

	disabled := trigger.ApplyExecution(record.Status, record.ExecutedAt)

	if err := triggers.save(trigger); err != nil {
		return nil, err
	}

	return &persistence.RecordOutcome{Trigger: trigger, Disabled: disabled}, nil
}

// ListByTrigger returns the most recent records first. A limit of zero or
// less returns every record.
func (r *TriggerExecutionRepository) ListByTrigger(_ context.Context, triggerID string, limit int) ([]*models.TriggerExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.records(triggerID)

	ids, err := dir.ids()
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByTrigger", "trigger execution", triggerID, err)
	}

	records := make([]*models.TriggerExecutionRecord, 0, len(ids))

	for _, id := range ids {
		var record models.TriggerExecutionRecord
		if _, err := dir.read(id, &record); err != nil {
			return nil, persistence.NewRepositoryError("ListByTrigger", "trigger execution", triggerID, err)
		}

		records = append(records, &record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExecutedAt.After(records[j].ExecutedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
