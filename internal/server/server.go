package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/elvia2mqtt/internal/config"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

// UserFlow runs the user step of the config wizard.
type UserFlow interface {
	StepUser(ctx context.Context, input *domain.UserInput) domain.FlowResult
}

type Server struct {
	port           uint
	httpLog        bool
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	flow           UserFlow
	flowTimeout    time.Duration
	requestTimeout time.Duration
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, flow UserFlow) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		flow:        flow,
		flowTimeout: cfg.Elvia.Timeout(),
		// lifecycle calls are bounded by the setup timeout
		requestTimeout: cfg.Entries.SetupTimeout() + 5*time.Second,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: NewServer.requestTimeout + 5*time.Second,
	}

	return server
}
