package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-formsync/core"
)

var (
	_ gocmd.Querier[GetFormMessage, core.Form]                 = (*GetFormQuery)(nil)
	_ gocmd.Querier[ListFormsMessage, []core.Form]             = (*ListFormsQuery)(nil)
	_ gocmd.Querier[ListSubmissionsMessage, []core.Submission] = (*ListSubmissionsQuery)(nil)
	_ gocmd.Querier[ListBasesMessage, []core.Base]             = (*ListBasesQuery)(nil)
	_ gocmd.Querier[ListTablesMessage, []core.Table]           = (*ListTablesQuery)(nil)
	_ gocmd.Querier[ListFieldsMessage, []core.Field]           = (*ListFieldsQuery)(nil)

	_ FormReader   = (*core.Service)(nil)
	_ SchemaReader = (*core.Service)(nil)
)
