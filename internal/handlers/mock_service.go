package handlers

import (
	"context"
	"net/http"

	"ecobee_automation/internal/models"
	"ecobee_automation/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseSubject  string
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.parseSubject, m.parseErr
}

type mockThermostat struct {
	status  models.HeatingStatus
	setErr  error
	tempErr error
	getErr  error
	devices []string

	lastDevice string
	lastMode   models.Mode
	lastTarget float64
	setCalls   int
	tempCalls  int
	getCalls   int
}

func (m *mockThermostat) SetMode(ctx context.Context, device string, mode models.Mode) (models.HeatingStatus, error) {
	m.setCalls++
	m.lastDevice = device
	m.lastMode = mode
	if m.setErr != nil {
		return models.HeatingStatus{}, m.setErr
	}
	st := m.status
	st.Device = device
	st.Mode = mode
	return st, nil
}

func (m *mockThermostat) SetTemperature(ctx context.Context, device string, target float64) (models.HeatingStatus, error) {
	m.tempCalls++
	m.lastDevice = device
	m.lastTarget = target
	if m.tempErr != nil {
		return models.HeatingStatus{}, m.tempErr
	}
	st := m.status
	st.Device = device
	st.TargetTemp = &target
	return st, nil
}

func (m *mockThermostat) GetStatus(ctx context.Context, device string) (models.HeatingStatus, error) {
	m.getCalls++
	m.lastDevice = device
	if m.getErr != nil {
		return models.HeatingStatus{}, m.getErr
	}
	st := m.status
	st.Device = device
	return st, nil
}

func (m *mockThermostat) Devices() []string { return m.devices }

type mockEventLog struct {
	resp       []models.AutomationEvent
	err        error
	lastFilter service.LogFilter
	calls      int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.AutomationEvent, error) {
	m.calls++
	m.lastFilter = f
	return m.resp, m.err
}

type mockDiagnostics struct {
	resp []models.DiagnosticArtifact
	err  error
}

func (m *mockDiagnostics) List(ctx context.Context) ([]models.DiagnosticArtifact, error) {
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
