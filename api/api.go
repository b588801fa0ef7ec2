package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hodlmetight/magmad"
	"github.com/hodlmetight/magmad/api/middleware"
	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/apierror"
)

type Api struct {
	magmad    *magmad.Magmad
	scheduler *magmad.Scheduler
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/orders", a.GetAllOrders)
	router.GET("/orders/:id", a.GetOrder)
	router.GET("/guard", a.GetGuardStatus)
	router.POST("/trigger", a.TriggerRun)
	return a.router
}

func NewAPI(m *magmad.Magmad, s *magmad.Scheduler) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{magmad: m, scheduler: s, router: r}
}

func (a Api) GetOrder(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	order, err := a.magmad.GetOrder(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	transitions, err := a.magmad.GetOrderTransitions(c.Request.Context(), order.OrderID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "history": transitions})
}

func (a Api) GetAllOrders(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	orders, err := a.magmad.ListOrders(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (a Api) GetGuardStatus(c *gin.Context) {
	flag, err := a.magmad.Guarded().Check(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if flag == nil {
		c.JSON(http.StatusOK, gin.H{"halted": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"halted": true, "reason": flag.Reason, "set_at": flag.SetAt})
}

func (a Api) TriggerRun(c *gin.Context) {
	a.scheduler.TriggerNow()
	c.JSON(http.StatusAccepted, gin.H{"message": "pipeline run requested"})
}
