package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	formcommand "github.com/goliatone/go-formsync/command"
	"github.com/goliatone/go-formsync/core"
	formquery "github.com/goliatone/go-formsync/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Bus owns the dispatcher subscriptions of the formsync handlers.
type Bus struct {
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription
}

// Service is the union of the surfaces the command and query handlers
// call. *core.Service satisfies it.
type Service interface {
	formcommand.MutatingService
	formquery.FormReader
	formquery.SchemaReader
}

// NewBus registers every formsync command and query on the global
// dispatcher. processor may be nil when the process does not run syncs.
func NewBus(adapter *RegistryAdapter, service Service, processor formcommand.SyncProcessor, runnerOpts ...runner.Option) (*Bus, error) {
	if adapter == nil {
		adapter = NewRegistryAdapter(nil)
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: service is required")
	}
	bus := &Bus{adapter: adapter}
	steps := []func() error{
		func() error { return registerCommand(bus, formcommand.NewConnectCommand(service), runnerOpts) },
		func() error { return registerCommand(bus, formcommand.NewCompleteCallbackCommand(service), runnerOpts) },
		func() error { return registerCommand(bus, formcommand.NewCreateFormCommand(service), runnerOpts) },
		func() error { return registerCommand(bus, formcommand.NewSubmitFormCommand(service), runnerOpts) },
		func() error { return registerCommand(bus, formcommand.NewHandleNotificationCommand(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewGetFormQuery(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewListFormsQuery(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewListSubmissionsQuery(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewListBasesQuery(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewListTablesQuery(service), runnerOpts) },
		func() error { return registerQuery(bus, formquery.NewListFieldsQuery(service), runnerOpts) },
	}
	if processor != nil {
		steps = append(steps, func() error {
			return registerCommand(bus, formcommand.NewProcessNotificationCommand(processor), runnerOpts)
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			bus.Close()
			return nil, err
		}
	}
	return bus, nil
}

// Close removes the dispatcher subscriptions.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func registerCommand[T any](bus *Bus, cmd command.Commander[T], runnerOpts []runner.Option) error {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	bus.subscriptions = append(bus.subscriptions, subscription)
	return bus.adapter.Register(cmd)
}

func registerQuery[T any, R any](bus *Bus, qry command.Querier[T, R], runnerOpts []runner.Option) error {
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	bus.subscriptions = append(bus.subscriptions, subscription)
	return bus.adapter.Register(qry)
}

// Execute dispatches msg after validating it and returns the result stored
// by the handler.
func Execute[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := command.NewResult[R]()
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	result, _ := collector.Load()
	return result, nil
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

var _ Service = (*core.Service)(nil)
