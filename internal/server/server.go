package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/werkbank/fakturo/internal/audit"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/werkbank/fakturo/internal/config"
	"github.com/werkbank/fakturo/internal/customer"
	customerdomain "github.com/werkbank/fakturo/internal/customer/domain"
	"github.com/werkbank/fakturo/internal/dunning"
	dunningdomain "github.com/werkbank/fakturo/internal/dunning/domain"
	"github.com/werkbank/fakturo/internal/invoice"
	invoicedomain "github.com/werkbank/fakturo/internal/invoice/domain"
	obsmetrics "github.com/werkbank/fakturo/internal/observability/metrics"
	"github.com/werkbank/fakturo/internal/payment"
	paymentdomain "github.com/werkbank/fakturo/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	customer.Module,
	invoice.Module,
	dunning.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(obsmetrics.HTTP().GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	auditSvc    auditdomain.Service
	customerSvc customerdomain.Service
	invoiceSvc  invoicedomain.Service
	dunningSvc  dunningdomain.Service
	paymentSvc  paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	AuditSvc    auditdomain.Service
	CustomerSvc customerdomain.Service
	InvoiceSvc  invoicedomain.Service
	DunningSvc  dunningdomain.Service
	PaymentSvc  paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		auditSvc:    p.AuditSvc,
		customerSvc: p.CustomerSvc,
		invoiceSvc:  p.InvoiceSvc,
		dunningSvc:  p.DunningSvc,
		paymentSvc:  p.PaymentSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	customers := api.Group("/customers")
	customers.POST("", s.CreateCustomer)
	customers.GET("", s.ListCustomers)
	customers.GET("/:id", s.GetCustomerByID)

	invoices := api.Group("/invoices")
	invoices.POST("", s.CreateInvoice)
	invoices.GET("", s.ListInvoices)
	invoices.GET("/:id", s.GetInvoiceByID)
	invoices.PUT("/:id", s.UpdateDraftInvoice)
	invoices.POST("/:id/status", s.ChangeInvoiceStatus)
	invoices.GET("/:id/notices", s.ListInvoiceNotices)
	invoices.POST("/:id/notices", s.CreateFirstNotice)
	invoices.GET("/:id/payments", s.ListInvoicePayments)
	invoices.POST("/:id/payments", s.RecordPayment)

	notices := api.Group("/notices")
	notices.GET("/:id", s.GetNoticeByID)
	notices.POST("/:id/follow-up", s.CreateFollowUpNotice)
	notices.POST("/:id/submit", s.SubmitNotice)
	notices.POST("/:id/approve", s.ApproveNotice)
	notices.POST("/:id/reject", s.RejectNotice)
	notices.POST("/:id/mark-sent", s.MarkNoticeSent)

	api.GET("/audit-logs", s.ListAuditLogs)
}
