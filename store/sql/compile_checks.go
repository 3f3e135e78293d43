package sqlstore

import "github.com/goliatone/go-formsync/core"

var (
	_ core.CredentialStore   = (*CredentialStore)(nil)
	_ core.SubscriptionStore = (*SubscriptionStore)(nil)
	_ core.FormStore         = (*FormStore)(nil)
	_ core.SubmissionStore   = (*SubmissionStore)(nil)
)
