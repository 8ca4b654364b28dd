// Package server exposes the billing HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/tagihin/tagihin/internal/billing/domain"
	clientdomain "github.com/tagihin/tagihin/internal/client/domain"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/internal/config"
	invoicedomain "github.com/tagihin/tagihin/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Billing  billingdomain.Service
	Clients  clientdomain.Service
	Invoices invoicedomain.Service
	Clock    clock.Clock
}

type Server struct {
	log      *zap.Logger
	cfg      config.Config
	billing  billingdomain.Service
	clients  clientdomain.Service
	invoices invoicedomain.Service
	clock    clock.Clock
}

func New(p Params) *Server {
	return &Server{
		log:      p.Log.Named("server"),
		cfg:      p.Cfg,
		billing:  p.Billing,
		clients:  p.Clients,
		invoices: p.Invoices,
		clock:    p.Clock,
	}
}

func registerGin(s *Server, cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/clients", s.HandleRegisterClient)
		v1.POST("/callbacks/payment", s.HandlePaymentCallback)

		// Billing endpoints stay reachable while suspended; paying the
		// outstanding invoice is how a client gets back in.
		billing := v1.Group("/clients/:client_id")
		{
			billing.GET("/invoices", s.HandleListInvoices)
			billing.GET("/invoices/:invoice_id", s.HandleGetInvoice)
			billing.POST("/invoices/:invoice_id/payment", s.HandleInitiatePayment)
			billing.DELETE("/invoices/:invoice_id/payment", s.HandleCancelPayment)
			billing.POST("/invoices/:invoice_id/payment/regenerate", s.HandleRegeneratePayment)
		}

		app := v1.Group("/clients/:client_id", s.SuspensionGate())
		{
			app.GET("/profile", s.HandleGetProfile)
		}
	}

	return r
}

func registerHooks(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(New),
	fx.Provide(registerGin),
	fx.Invoke(registerHooks),
)
