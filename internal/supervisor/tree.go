// README: Suture supervisor tree: data layer (change feed), render layer (frames, websocket), api layer (HTTP).
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"parkmark/internal/logging"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree isolates failures per layer: a crashing change feed does not take the
// HTTP API down with it.
type Tree struct {
	root   *suture.Supervisor
	data   *suture.Supervisor
	render *suture.Supervisor
	api    *suture.Supervisor
	config TreeConfig
}

func NewTree(config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = logEvent

	t := &Tree{
		root:   suture.New("parkmark", rootSpec),
		data:   suture.New("data-layer", childSpec),
		render: suture.New("render-layer", childSpec),
		api:    suture.New("api-layer", childSpec),
		config: config,
	}
	t.root.Add(t.data)
	t.root.Add(t.render)
	t.root.Add(t.api)
	return t
}

// logEvent routes suture events through the process logger.
func logEvent(e suture.Event) {
	var ev *zerolog.Event
	switch e.(type) {
	case suture.EventServicePanic:
		ev = logging.Error()
	case suture.EventServiceTerminate, suture.EventStopTimeout, suture.EventBackoff:
		ev = logging.Warn()
	default:
		ev = logging.Info()
	}
	ev.Fields(e.Map()).Msg(e.String())
}

func (t *Tree) Root() *suture.Supervisor { return t.root }

func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

func (t *Tree) AddRenderService(svc suture.Service) suture.ServiceToken {
	return t.render.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
