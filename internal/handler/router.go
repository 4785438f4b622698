package handler

import (
	"net/http"

	"raffle-ledger/internal/notify"
	"raffle-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// RouterDeps 組裝路由所需的服務
type RouterDeps struct {
	Raffles       service.RaffleService
	Accounts      service.AccountService
	Hub           *notify.Hub
	Authenticator *Authenticator
	ChainID       int64
}

// NewRouter 建立 gin engine 並註冊所有路由
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	authenticate := deps.Authenticator.Middleware()

	NewRaffleHandler(deps.Raffles).RegisterRoutes(router, authenticate)
	NewEventHandler(deps.Raffles, deps.Hub).RegisterRoutes(router)
	if deps.Accounts != nil {
		NewAccountHandler(deps.Accounts, deps.ChainID).RegisterRoutes(router, authenticate)
	}

	return router
}
