package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/playtestlabs/playtest/internal/config"
	"github.com/playtestlabs/playtest/internal/image"
	orderdomain "github.com/playtestlabs/playtest/internal/order/domain"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(Run),
)

// ImageIngestor is what the upload handler needs from the pipeline.
type ImageIngestor interface {
	Ingest(ctx context.Context, refs []string, orderID string, addr *image.Address) *image.Report
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Webhook paymentdomain.WebhookIngestor
	Images  *image.Service
	Orders  orderdomain.Repository
}

type Server struct {
	cfg     config.Config
	log     *zap.Logger
	webhook paymentdomain.WebhookIngestor
	images  ImageIngestor
	orders  orderdomain.Repository
}

func New(p Params) *Server {
	return &Server{
		cfg:     p.Cfg,
		log:     p.Log.Named("server"),
		webhook: p.Webhook,
		images:  p.Images,
		orders:  p.Orders,
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/webhook", s.HandleWebhook)
	api.POST("/upload-images", s.UploadImages)
	api.GET("/orders/:session_id", s.GetOrder)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func Run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
