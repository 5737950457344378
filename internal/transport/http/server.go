package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"increm-coach/internal/bootstrap"
	"increm-coach/internal/pkg/jwtutil"
	"increm-coach/internal/transport/http/handler"
	"increm-coach/internal/transport/http/middleware"
	"increm-coach/internal/transport/http/response"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), cors.New(corsConfig()))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	Register(router, Services{
		Embeddings: app.EmbeddingService,
		Chat:       app.ChatService,
		History:    app.ChatService,
		Knowledge:  app.KnowledgeService,
	}, app.Config.Auth.JWTSecret, app.Config.Auth.ProtectFunctions)

	return router
}

// Services are the application services the routes dispatch to.
type Services struct {
	Embeddings handler.EmbeddingGenerator
	Chat       handler.ChatReplier
	History    handler.HistoryReader
	Knowledge  handler.KnowledgeManager
}

// Register mounts the function endpoints and the /api/v1 surface.
func Register(router *gin.Engine, svc Services, jwtSecret string, protectFunctions bool) {
	functionsHandler := handler.NewFunctionsHandler(svc.Embeddings, svc.Chat, protectFunctions)
	historyHandler := handler.NewHistoryHandler(svc.History)
	knowledgeHandler := handler.NewKnowledgeHandler(svc.Knowledge)

	functions := router.Group("/functions/v1")
	if protectFunctions {
		functions.Use(middleware.AuthJWTWith(jwtSecret, response.FunctionError))
	}
	functions.POST("/generate-embeddings", functionsHandler.GenerateEmbeddings)
	functions.POST("/chat-completion", functionsHandler.ChatCompletion)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(jwtSecret))

	chatGroup := v1.Group("/chat")
	chatGroup.GET("/history", historyHandler.GetHistory)

	adminGroup := v1.Group("/admin/knowledge")
	adminGroup.Use(middleware.RequireRole(jwtutil.RoleAdmin))
	adminGroup.GET("", knowledgeHandler.Stats)
	adminGroup.DELETE("", knowledgeHandler.Clear)
	adminGroup.POST("/ingest", knowledgeHandler.Ingest)
	adminGroup.POST("/seed", knowledgeHandler.Seed)
	adminGroup.POST("/upload", knowledgeHandler.Upload)
}

func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:          12 * time.Hour,
	}
}
