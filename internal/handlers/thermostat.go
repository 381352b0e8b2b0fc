package handlers

import (
	"net/http"
	"strconv"

	"ecobee_automation/internal/automation"
	"ecobee_automation/internal/models"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusModeSet = "mode_set"
	statusTempSet = "temperature_set"

	errGetStatus       = "failed to read status"
	errSetMode         = "failed to set mode"
	errSetTemperature  = "failed to set temperature"
	errGetDiagnostics  = "failed to load diagnostics"
	errPortalAuth      = "portal rejected automation credentials"
	errPortalTimeout   = "portal did not respond within the retry budget"
	errUnknownDeviceId = "unknown device"
	errBadSetpoint     = "unknown device or unsupported target temperature"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// httpStatusForAutomationError maps failure kinds onto the facade contract:
// caller mistakes are 4xx, the portal rejecting us is a bad gateway, and an
// exhausted retry budget on a slow portal is a gateway timeout.
func httpStatusForAutomationError(err error) (int, string) {
	switch automation.KindOf(err) {
	case automation.KindConfiguration:
		return http.StatusBadRequest, errUnknownDeviceId
	case automation.KindAuthentication:
		return http.StatusBadGateway, errPortalAuth
	case automation.KindNavigationTimeout, automation.KindElementNotFound, automation.KindSessionExpired:
		return http.StatusGatewayTimeout, errPortalTimeout
	}
	return http.StatusInternalServerError, errSetMode
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List configured devices
// @Tags         thermostat
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "devices"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) getDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": h.services.Devices()})
}

// @Summary      Set thermostat mode
// @Description  Drives the portal UI to the requested mode and returns the verified status. Mode accepts heat, aux (or aux_heat), cool, auto, off.
// @Tags         thermostat
// @Produce      json
// @Param        device  path  string  true  "Thermostat name"
// @Param        mode    path  string  true  "Target mode"  Enums(heat,aux,aux_heat,cool,auto,off)
// @Success      200  {object}  map[string]interface{}  "status, result"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /ecobee/{device}/{mode} [post]
// @Security     BearerAuth
func (h *Handler) setMode(c *gin.Context) {
	ctx := c.Request.Context()
	device := c.Param("device")

	mode, err := models.ParseMode(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.services.SetMode(ctx, device, mode)
	if err != nil {
		code, msg := httpStatusForAutomationError(err)
		h.logAndJSONError(c, code, msg, "set_mode_failed", err, "device", device, "mode", mode)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": statusModeSet,
		"mode":   mode,
		"result": status,
	})
}

// @Summary      Set target temperature
// @Description  Steps the portal's up/down controls until the setpoint matches the requested value (one click per degree) and returns the verified status. Values within half a degree of the current setpoint are a no-op.
// @Tags         thermostat
// @Produce      json
// @Param        device  path  string  true  "Thermostat name"
// @Param        value   path  number  true  "Target temperature in the portal's display unit"
// @Success      200  {object}  map[string]interface{}  "status, target, result"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /api/v1/temperature/{device}/{value} [post]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	ctx := c.Request.Context()
	device := c.Param("device")

	target, err := strconv.ParseFloat(c.Param("value"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid temperature value"})
		return
	}

	status, err := h.services.SetTemperature(ctx, device, target)
	if err != nil {
		code, msg := httpStatusForAutomationError(err)
		switch code {
		case http.StatusBadRequest:
			msg = errBadSetpoint
		case http.StatusInternalServerError:
			msg = errSetTemperature
		}
		h.logAndJSONError(c, code, msg, "set_temperature_failed", err, "device", device, "target", target)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": statusTempSet,
		"target": target,
		"result": status,
	})
}

// @Summary      Read thermostat status
// @Description  Scrapes a fresh status from the portal; nothing is cached. Partial results carry partial=true.
// @Tags         thermostat
// @Produce      json
// @Param        device  path  string  true  "Thermostat name"
// @Success      200  {object}  models.HeatingStatus
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /api/v1/status/{device} [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	ctx := c.Request.Context()
	device := c.Param("device")

	status, err := h.services.GetStatus(ctx, device)
	if err != nil {
		code, msg := httpStatusForAutomationError(err)
		if code == http.StatusInternalServerError {
			msg = errGetStatus
		}
		h.logAndJSONError(c, code, msg, "get_status_failed", err, "device", device)
		return
	}

	c.JSON(http.StatusOK, status)
}

// @Summary      List diagnostic artifacts
// @Tags         diagnostics
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, artifacts"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/diagnostics [get]
// @Security     BearerAuth
func (h *Handler) getDiagnostics(c *gin.Context) {
	ctx := c.Request.Context()
	artifacts, err := h.services.Diagnostics.List(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetDiagnostics, "diagnostics_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(artifacts),
		"artifacts": artifacts,
	})
}
