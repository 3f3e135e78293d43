package sync

import (
	"context"

	"github.com/goliatone/go-formsync/core"
)

type formMapping struct {
	id   string
	keys map[string]string
}

// formMappings resolves, once per run, the forms of the subscription owner
// bound to each table of the subscribed base.
type formMappings struct {
	store        core.FormStore
	subscription core.WebhookSubscription
	byTable      map[string][]formMapping
	loaded       bool
}

func newFormMappings(store core.FormStore, subscription core.WebhookSubscription) *formMappings {
	return &formMappings{store: store, subscription: subscription}
}

// forTable returns no mappings when no form store is configured; changed
// records are then acknowledged without touching answers.
func (m *formMappings) forTable(ctx context.Context, tableID string) ([]formMapping, error) {
	if m.store == nil {
		return nil, nil
	}
	if !m.loaded {
		forms, err := m.store.ListByBase(ctx, m.subscription.BaseID)
		if err != nil {
			return nil, err
		}
		m.byTable = map[string][]formMapping{}
		for _, form := range forms {
			if form.OwnerUserID != m.subscription.OwnerUserID {
				continue
			}
			m.byTable[form.TableID] = append(m.byTable[form.TableID], formMapping{
				id:   form.ID,
				keys: form.QuestionKeysByFieldID(),
			})
		}
		m.loaded = true
	}
	return m.byTable[tableID], nil
}

func answersFromCells(keys map[string]string, cells map[string]any) map[string]any {
	answers := map[string]any{}
	for fieldID, value := range cells {
		key, ok := keys[fieldID]
		if !ok {
			continue
		}
		answers[key] = normalizeCellValue(value)
	}
	return answers
}

// normalizeCellValue reduces select choices, which the webhook feed reports
// as {id, name, color} objects, to their names.
func normalizeCellValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		if name, ok := typed["name"].(string); ok {
			return name
		}
		return typed
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeCellValue(item))
		}
		return out
	default:
		return value
	}
}
