package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/pkg/apperr"
)

// EntityHandler serves CRUD for every registered entity type through one set
// of routes; the type name in the path selects the service.
type EntityHandler struct {
	registry *entity.Registry
}

func NewEntityHandler(registry *entity.Registry) *EntityHandler {
	return &EntityHandler{registry: registry}
}

func (h *EntityHandler) Types(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.registry.Types()})
}

func (h *EntityHandler) List(c *gin.Context) {
	svc, err := h.registry.Lookup(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	// Optional equality filter: ?field=rut&value=123456789
	if field := c.Query("field"); field != "" {
		records, err := svc.FindByField(c.Request.Context(), field, c.Query("value"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
		return
	}

	records, err := svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

func (h *EntityHandler) Get(c *gin.Context) {
	svc, err := h.registry.Lookup(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *EntityHandler) Create(c *gin.Context) {
	svc, err := h.registry.Lookup(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := svc.Create(c.Request.Context(), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *EntityHandler) Update(c *gin.Context) {
	svc, err := h.registry.Lookup(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := svc.Update(c.Request.Context(), c.Param("id"), partial)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *EntityHandler) Delete(c *gin.Context) {
	svc, err := h.registry.Lookup(c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps application errors to their HTTP shape.
func respondError(c *gin.Context, err error) {
	if appErr, ok := apperr.AsError(err); ok {
		body := gin.H{"error": appErr.Message, "code": appErr.Code}
		if len(appErr.FieldErrors) > 0 {
			body["field_errors"] = appErr.FieldErrors
		}
		c.JSON(appErr.HTTPStatus, body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
}
