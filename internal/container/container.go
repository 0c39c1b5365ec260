// Package container wires cronboard services using go.uber.org/dig.
package container

import (
	"context"
	"log/slog"

	"go.uber.org/dig"

	"github.com/cronboard/cronboard/internal/client"
	"github.com/cronboard/cronboard/internal/config"
	"github.com/cronboard/cronboard/internal/dashboard"
	"github.com/cronboard/cronboard/internal/health"
	"github.com/cronboard/cronboard/internal/notify"
	"github.com/cronboard/cronboard/internal/scheduler"
	"github.com/cronboard/cronboard/internal/synchronizer"
	"github.com/cronboard/cronboard/internal/trigger"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg       *config.Config
	client    *client.Client
	sched     *scheduler.Scheduler
	sync      *synchronizer.Synchronizer
	health    *health.Service
	triggers  *trigger.Service
	notifier  *notify.Dispatcher
	dashboard *dashboard.Server
}

func (c *Container) Config() *config.Config                   { return c.cfg }
func (c *Container) Client() *client.Client                   { return c.client }
func (c *Container) Synchronizer() *synchronizer.Synchronizer { return c.sync }
func (c *Container) Health() *health.Service                  { return c.health }
func (c *Container) Triggers() *trigger.Service               { return c.triggers }
func (c *Container) Notifier() *notify.Dispatcher             { return c.notifier }
func (c *Container) Dashboard() *dashboard.Server             { return c.dashboard }

// Close stops polling. Long-running services stop with their Start context.
func (c *Container) Close() {
	c.sync.Close()
	c.sched.StopAll()
}

// New builds and wires all services from cfg. Nothing starts running until
// the caller starts the returned services.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		newClient,
		newScheduler,
		newSynchronizer,
		newHealth,
		newTriggers,
		newNotifier,
		newDashboard,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		cl *client.Client,
		sched *scheduler.Scheduler,
		syn *synchronizer.Synchronizer,
		hs *health.Service,
		ts *trigger.Service,
		nd *notify.Dispatcher,
		ds *dashboard.Server,
	) {
		result = &Container{
			cfg:       cfg,
			client:    cl,
			sched:     sched,
			sync:      syn,
			health:    hs,
			triggers:  ts,
			notifier:  nd,
			dashboard: ds,
		}
	})
	return result, err
}

// NewClient builds only the Graph Client, for one-shot CLI commands.
func NewClient(cfg *config.Config) *client.Client { return newClient(cfg) }

func newClient(cfg *config.Config) *client.Client {
	r := cfg.Backend.Routes
	return client.New(cfg.Backend.APIURL,
		client.WithTimeout(cfg.Backend.Timeout()),
		client.WithRoutes(client.Routes{
			ListGroups:  r.ListGroups,
			CreateGroup: r.CreateGroup,
			ListJobs:    r.ListJobs,
			CreateJob:   r.CreateJob,
			JobStatus:   r.JobStatus,
			Execute:     r.Execute,
			Health:      r.Health,
		}),
	)
}

func newScheduler() *scheduler.Scheduler {
	return scheduler.New(context.Background())
}

func newSynchronizer(cfg *config.Config, cl *client.Client, sched *scheduler.Scheduler) *synchronizer.Synchronizer {
	return synchronizer.New(cl, sched, synchronizer.Options{
		JobsInterval:   cfg.Poll.JobsInterval(),
		StatusInterval: cfg.Poll.StatusInterval(),
		GroupsInterval: cfg.Poll.GroupsInterval(),
		MaxParallel:    cfg.Poll.MaxParallel,
	})
}

func newHealth(cfg *config.Config, cl *client.Client) *health.Service {
	return health.NewService(cl, cfg.Health.Interval())
}

// newTriggers wires scheduled triggers to group execution.
func newTriggers(cl *client.Client) *trigger.Service {
	svc := trigger.NewService(config.TriggersPath())
	svc.SetOnFire(func(ctx context.Context, t trigger.Trigger) error {
		return cl.TriggerExecution(ctx, t.GroupID)
	})
	return svc
}

// newNotifier builds the enabled notifiers and subscribes the dispatcher to
// status transitions. A notifier that cannot be created is skipped.
func newNotifier(cfg *config.Config, syn *synchronizer.Synchronizer) *notify.Dispatcher {
	notifiers := []notify.Notifier{notify.LogNotifier{}}

	if sc := cfg.Notify.Slack; sc.Enabled {
		if n, err := notify.NewSlackNotifier(sc.BotToken, sc.ChannelID); err != nil {
			slog.Warn("container: slack notifier disabled", "err", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if tc := cfg.Notify.Telegram; tc.Enabled {
		if n, err := notify.NewTelegramNotifier(tc.Token, tc.ChatID, ""); err != nil {
			slog.Warn("container: telegram notifier disabled", "err", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}

	d := notify.NewDispatcher(cfg.Notify.Statuses, notifiers...)
	syn.SetOnTransition(d.OnTransition)
	return d
}

func newDashboard(
	cfg *config.Config,
	cl *client.Client,
	syn *synchronizer.Synchronizer,
	hs *health.Service,
) *dashboard.Server {
	srv := dashboard.New(cl, syn, dashboard.Options{
		AllowedOrigins: cfg.Dashboard.AllowedOrigins,
		Health:         hs,
	})
	if cfg.Health.Enabled {
		hs.SetOnChange(srv.HealthChanged)
	}
	return srv
}
