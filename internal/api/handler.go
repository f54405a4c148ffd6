// Package api serves the admin HTTP surface over the resolver, the ACS client
// and the device cache.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/acs"
	"github.com/taoyao-code/isp-ops/internal/billing"
	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/devicecache"
	"github.com/taoyao-code/isp-ops/internal/params"
	"github.com/taoyao-code/isp-ops/internal/resolver"
)

// Resolver is the resolution engine as seen by the API.
type Resolver interface {
	Resolve(ctx context.Context, identifier string, kind resolver.Kind) (resolver.MatchResult, error)
	Table() *params.Table
}

// DeviceOps is the ACS surface the API drives.
type DeviceOps interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	Reboot(ctx context.Context, id string) error
	RefreshObject(ctx context.Context, id, objectName string) error
	AddTag(ctx context.Context, id, tag string) error
	RemoveTag(ctx context.Context, id, tag string) error
	ReplaceTags(ctx context.Context, id string, tags []string) error
	SetParameterValues(ctx context.Context, id string, values []acs.ParameterValue) error
}

// CacheAdmin exposes the device cache controls.
type CacheAdmin interface {
	Invalidate()
	Stats() devicecache.Stats
}

// CustomerLookup finds the billing customer behind a PPPoE account.
type CustomerLookup interface {
	GetCustomerByPPPoE(ctx context.Context, username string) (*billing.Customer, error)
}

// Handler implements the admin endpoints.
type Handler struct {
	resolver  Resolver
	devices   DeviceOps
	cache     CacheAdmin
	customers CustomerLookup // optional
	logger    *zap.Logger
	now       func() time.Time
}

func NewHandler(r Resolver, devices DeviceOps, cache CacheAdmin, customers CustomerLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resolver:  r,
		devices:   devices,
		cache:     cache,
		customers: customers,
		logger:    logger,
		now:       time.Now,
	}
}

type deviceView struct {
	ID         string            `json:"id"`
	Synthetic  bool              `json:"synthetic,omitempty"`
	Online     bool              `json:"online"`
	LastInform *time.Time        `json:"last_inform,omitempty"`
	Tags       []string          `json:"tags"`
	Fields     map[string]string `json:"fields"`
}

type resolveResponse struct {
	Found    bool              `json:"found"`
	Outcome  string            `json:"outcome"`
	Strategy string            `json:"strategy"`
	Stage    string            `json:"stage"`
	Path     string            `json:"path,omitempty"`
	Value    string            `json:"value,omitempty"`
	Device   *deviceView       `json:"device,omitempty"`
	Customer *billing.Customer `json:"customer,omitempty"`
}

type summaryResponse struct {
	Device   deviceView        `json:"device"`
	Customer *billing.Customer `json:"customer,omitempty"`
}

func (h *Handler) view(d *device.Device) deviceView {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return deviceView{
		ID:         d.ID,
		Synthetic:  d.Synthetic,
		Online:     d.Online(h.now(), device.DefaultOnlineWindow),
		LastInform: d.LastInform,
		Tags:       tags,
		Fields:     h.resolver.Table().Summarize(d).Map(params.SummaryFields),
	}
}

// Resolve GET /api/resolve?kind=phone|pppoe|serial&q=...
func (h *Handler) Resolve(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	kind, ok := resolver.ParseKind(strings.ToLower(c.DefaultQuery("kind", string(resolver.KindPPPoE))))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be phone, pppoe or serial"})
		return
	}

	res, err := h.resolver.Resolve(c.Request.Context(), q, kind)
	if err != nil {
		h.fail(c, "resolve", err)
		return
	}

	out := resolveResponse{
		Found:    res.Found(),
		Outcome:  string(res.Outcome),
		Strategy: string(res.Strategy),
		Stage:    string(res.Stage),
		Path:     res.Path,
		Value:    res.Value,
		Customer: res.Customer,
	}
	if res.Device != nil {
		v := h.view(res.Device)
		out.Device = &v
	}
	c.JSON(http.StatusOK, out)
}

// Summary GET /api/devices/:id/summary
func (h *Handler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.devices.GetDevice(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "get device", err)
		return
	}

	out := summaryResponse{Device: h.view(d)}
	if h.customers != nil && !d.Synthetic {
		if user, ok := h.resolver.Table().Get(d, params.FieldPPPUsername); ok {
			cust, err := h.customers.GetCustomerByPPPoE(ctx, user.String())
			if err != nil {
				h.logger.Warn("billing lookup failed", zap.String("device_id", d.ID), zap.Error(err))
			}
			out.Customer = cust
		}
	}
	c.JSON(http.StatusOK, out)
}

// Reboot POST /api/devices/:id/reboot
func (h *Handler) Reboot(c *gin.Context) {
	id := c.Param("id")
	if err := h.devices.Reboot(c.Request.Context(), id); err != nil {
		h.fail(c, "reboot", err)
		return
	}
	h.logger.Info("device reboot queued", zap.String("device_id", id), zap.String("api_key", c.GetString("api_key")))
	c.JSON(http.StatusAccepted, gin.H{"device_id": id, "task": "reboot"})
}

// Refresh POST /api/devices/:id/refresh[?object=...]
func (h *Handler) Refresh(c *gin.Context) {
	id := c.Param("id")
	object := c.Query("object")
	if err := h.devices.RefreshObject(c.Request.Context(), id, object); err != nil {
		h.fail(c, "refresh", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"device_id": id, "task": "refreshObject", "object": object})
}

type tagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

// AddTag POST /api/devices/:id/tags {"tag": "..."}
func (h *Handler) AddTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Tag) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag is required"})
		return
	}
	id := c.Param("id")
	tag := strings.TrimSpace(req.Tag)
	if err := h.devices.AddTag(c.Request.Context(), id, tag); err != nil {
		h.fail(c, "add tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": id, "tag": tag})
}

// RemoveTag DELETE /api/devices/:id/tags/:tag
func (h *Handler) RemoveTag(c *gin.Context) {
	id, tag := c.Param("id"), c.Param("tag")
	if err := h.devices.RemoveTag(c.Request.Context(), id, tag); err != nil {
		h.fail(c, "remove tag", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type replaceTagsRequest struct {
	Tags []string `json:"tags"`
}

// ReplaceTags PUT /api/devices/:id/tags {"tags": [...]}; an empty list clears them.
func (h *Handler) ReplaceTags(c *gin.Context) {
	var req replaceTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Tags == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tags array is required"})
		return
	}
	tags := make([]string, 0, len(req.Tags))
	for _, t := range req.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	id := c.Param("id")
	if err := h.devices.ReplaceTags(c.Request.Context(), id, tags); err != nil {
		h.fail(c, "replace tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": id, "tags": tags})
}

type parameterValue struct {
	Path  string `json:"path" binding:"required"`
	Value any    `json:"value"`
	Type  string `json:"type"`
}

type setParametersRequest struct {
	Values []parameterValue `json:"values" binding:"required,min=1,dive"`
}

// SetParameters POST /api/devices/:id/parameters {"values": [{"path", "value", "type"}]}
func (h *Handler) SetParameters(c *gin.Context) {
	var req setParametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "values with a path each are required"})
		return
	}
	values := make([]acs.ParameterValue, 0, len(req.Values))
	for _, v := range req.Values {
		values = append(values, acs.ParameterValue{Path: v.Path, Value: v.Value, Type: v.Type})
	}
	id := c.Param("id")
	if err := h.devices.SetParameterValues(c.Request.Context(), id, values); err != nil {
		h.fail(c, "set parameters", err)
		return
	}
	h.logger.Info("device parameters queued",
		zap.String("device_id", id),
		zap.Int("count", len(values)),
		zap.String("api_key", c.GetString("api_key")))
	c.JSON(http.StatusAccepted, gin.H{"device_id": id, "task": "setParameterValues", "count": len(values)})
}

// InvalidateCache POST /api/cache/invalidate
func (h *Handler) InvalidateCache(c *gin.Context) {
	h.cache.Invalidate()
	c.JSON(http.StatusOK, h.cache.Stats())
}

// CacheStats GET /api/cache/stats
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn(op+" failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, acs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, acs.ErrCircuitOpen), errors.Is(err, acs.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, resolver.ErrTransport):
		return http.StatusBadGateway
	}
	var se *acs.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
