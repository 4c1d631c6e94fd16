package app

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snaplink/hookrelay/config"
	"github.com/snaplink/hookrelay/db"
)

type Application struct {
	Config       config.AppConfig
	DB           db.Querier
	Subscriptions *SubscriptionStore
	Stats        *Stats
	HTTPClient   *http.Client
	dbconn       *pgxpool.Pool
	stopRouter   func()
}

func NewApp(cfg *config.AppConfig) (*Application, error) {
	conn, err := connectToDB(cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return nil, err
	}
	queries := db.New(conn)

	client := &http.Client{
		// Per-call deadlines are enforced with context.WithTimeout at the
		// Delivery Engine call sites (30s fan-out, 10s test-delivery), so
		// the client itself carries no blanket timeout.
		CheckRedirect: capRedirects(3),
	}

	store := NewSubscriptionStore(queries)

	return &Application{
		Config:        *cfg,
		DB:            queries,
		Subscriptions: store,
		Stats:         NewStats(queries),
		HTTPClient:    client,
		dbconn:        conn,
		stopRouter:    func() {},
	}, nil
}

// capRedirects returns a CheckRedirect func that allows up to max redirect
// hops and never re-signs the request (the signature was computed for the
// original request only, per delivery policy).
func capRedirects(max int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

func (a *Application) SetStopRouter(fn func()) {
	a.stopRouter = fn
}

func (a *Application) StopRouter() {
	a.stopRouter()
}
