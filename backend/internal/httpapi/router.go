package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/httpapi/handlers"
	"collabcore/backend/internal/httpapi/middleware"
	"collabcore/backend/internal/ws"
)

type RouterOptions struct {
	JWTSecret      []byte
	AllowedOrigins []string
	// 可为 nil
	Lister handlers.DocumentLister
	Hub    *ws.Hub
	WS     *ws.Manager
}

func NewRouter(svc collab.Service, opt RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if len(opt.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opt.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Hub 为 nil 时不能直接赋给接口，否则是非 nil 的接口值
	var (
		notifier handlers.Notifier
		members  handlers.PresenceSource
	)
	if opt.Hub != nil {
		notifier, members = opt.Hub, opt.Hub
	}
	docs := handlers.NewDocumentHandler(svc, opt.Lister, members)
	fields := handlers.NewFieldHandler(svc, notifier)

	auth := middleware.AuthMiddleware(opt.JWTSecret)
	v1 := r.Group("/v1", auth)
	{
		v1.POST("/documents", docs.Create)
		v1.GET("/documents", docs.List)
		v1.GET("/documents/:docID", docs.Get)
		v1.GET("/documents/:docID/revision", docs.Revision)
		v1.GET("/documents/:docID/ops", docs.OpsSince)
		v1.POST("/documents/:docID/ops", docs.Submit)
		v1.GET("/documents/:docID/versions/:rev", docs.ContentAt)
		v1.POST("/documents/:docID/undo", docs.Undo)
		v1.POST("/documents/:docID/snapshot", docs.Snapshot)
		v1.GET("/documents/:docID/presence", docs.Presence)
		v1.GET("/documents/:docID/fields/:field", fields.Get)
		v1.PUT("/documents/:docID/fields/:field", fields.Merge)
	}
	if opt.WS != nil {
		r.GET("/ws", auth, opt.WS.WebSocketConnect)
	}
	return r
}
