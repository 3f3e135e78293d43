package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// recordHandlers builds repository handlers for a record whose primary key is
// a UUID held in a string column. identifier names the natural key column
// used by repository lookups.
func recordHandlers[R any](
	idField func(*R) *string,
	identifier string,
	identifierValue func(*R) string,
) repository.ModelHandlers[*R] {
	return repository.ModelHandlers[*R]{
		NewRecord: func() *R {
			return new(R)
		},
		GetID: func(record *R) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(*idField(record))
		},
		SetID: func(record *R, id uuid.UUID) {
			if record != nil {
				*idField(record) = id.String()
			}
		},
		GetIdentifier: func() string {
			return identifier
		},
		GetIdentifierValue: func(record *R) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(identifierValue(record))
		},
	}
}

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return recordHandlers(
		func(r *credentialRecord) *string { return &r.ID },
		"external_user_id",
		func(r *credentialRecord) string { return r.ExternalUserID },
	)
}

func subscriptionHandlers() repository.ModelHandlers[*subscriptionRecord] {
	return recordHandlers(
		func(r *subscriptionRecord) *string { return &r.ID },
		"subscription_id",
		func(r *subscriptionRecord) string { return r.SubscriptionID },
	)
}

func formHandlers() repository.ModelHandlers[*formRecord] {
	return recordHandlers(
		func(r *formRecord) *string { return &r.ID },
		"id",
		func(r *formRecord) string { return r.ID },
	)
}

func submissionHandlers() repository.ModelHandlers[*submissionRecord] {
	return recordHandlers(
		func(r *submissionRecord) *string { return &r.ID },
		"id",
		func(r *submissionRecord) string { return r.ID },
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
