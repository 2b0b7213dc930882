package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/repair"
	"github.com/yazid-hub/GMOA/internal/workorder"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/summary", handleSummary(opts))
	api.GET("/workorders", handleWorkOrderList(opts.Orders))
	api.GET("/workorders/:id", handleWorkOrderDetail(opts.Orders))
	api.GET("/repairs", handleRepairList(opts.Repairs))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleSummary(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := WorkOrderSummary(opts.DB.WithContext(c.Request.Context()), opts.Workflow)
		if err != nil {
			writeError(c, err)
			return
		}
		repairs, err := RepairSummary(opts.DB.WithContext(c.Request.Context()))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"work_orders": orders, "repairs": repairs})
	}
}

func handleWorkOrderList(orders *workorder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := workorder.Filter{
			Status:     c.Query("status"),
			AssetID:    c.Query("asset"),
			Technician: c.Query("technician"),
			Team:       c.Query("team"),
			Limit:      100,
		}
		var err error
		if f.From, err = queryTime(c, "from"); err != nil {
			writeError(c, err)
			return
		}
		if f.To, err = queryTime(c, "to"); err != nil {
			writeError(c, err)
			return
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(c, gmaoerr.Invalid("limit", "must be a positive integer"))
				return
			}
			f.Limit = n
		}
		list, err := orders.List(c.Request.Context(), f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func handleWorkOrderDetail(orders *workorder.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := orders.GetDetail(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func handleRepairList(repairs *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if overdue, _ := strconv.ParseBool(c.Query("overdue")); overdue {
			list, err := repairs.ListOverdue(ctx)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, list)
			return
		}
		list, err := repairs.List(ctx, repair.Filter{
			WorkOrderID: c.Query("workorder"),
			Status:      c.Query("status"),
			AssignedTo:  c.Query("assigned"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// queryTime parses an optional RFC 3339 or YYYY-MM-DD query parameter.
func queryTime(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, gmaoerr.Invalid(name, "%q is not a date", v)
	}
	return t, nil
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gmaoerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gmaoerr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, gmaoerr.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, gmaoerr.ErrState), errors.Is(err, gmaoerr.ErrBlockingDependency),
		errors.Is(err, gmaoerr.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
