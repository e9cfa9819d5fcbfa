package controllers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cryptotracker/imagebuild/adapters"
	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/cryptotracker/imagebuild/core/services"
	"github.com/cryptotracker/imagebuild/internal/tools"
	"github.com/cryptotracker/imagebuild/repositories"
	"github.com/gammazero/workerpool"
	"github.com/gin-gonic/gin"
	"github.com/kinbiko/jsonassert"
	"gotest.tools/v3/assert"
)

func TestHTTPController_Alive(t *testing.T) {
	c := HTTPController{}
	router := gin.Default()
	path := "/v1/liveness"
	router.GET(path, c.Alive)
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusOK == w.Code, w.Code)
	assert.Assert(t, w.Body.String() == "{\"status\":200,\"title\":\"OK\"}", w.Body.String())
}

func TestHTTPController_Ready(t *testing.T) {
	tests := []struct {
		name            string
		assemblyService ports.AssemblyService
		expectedCode    int
		expectedBody    string
	}{
		{
			name:            "not ready",
			assemblyService: services.NewMockAssemblyService(false),
			expectedCode:    http.StatusServiceUnavailable,
			expectedBody:    "{\"status\":503,\"title\":\"Service Unavailable\"}",
		},
		{
			name:            "ready",
			assemblyService: services.NewMockAssemblyService(true),
			expectedCode:    http.StatusOK,
			expectedBody:    "{\"status\":200,\"title\":\"OK\"}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HTTPController{assemblyService: tt.assemblyService}
			router := gin.Default()
			path := "/v1/readiness"
			router.GET(path, c.Ready)
			req, _ := http.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Assert(t, tt.expectedCode == w.Code, w.Code)
			assert.Assert(t, tt.expectedBody == w.Body.String(), w.Body.String())
		})
	}
}

func TestHTTPController_Build(t *testing.T) {
	tests := []struct {
		name            string
		assemblyService ports.AssemblyService
		expectedCode    int
		expectedBody    string
		jsonFile        string
	}{
		{
			name:            "invalid request",
			assemblyService: services.NewMockAssemblyService(true),
			expectedCode:    http.StatusBadRequest,
			expectedBody:    "{\"status\":400,\"title\":\"Bad Request\"}",
			jsonFile:        "../api/v1/testdata/build-invalid.json",
		},
		{
			name:            "validation error",
			assemblyService: services.NewMockAssemblyService(false),
			expectedCode:    http.StatusInternalServerError,
			expectedBody:    "{\"detail\":\"Tag=crypto-tracker:1.0.0\",\"status\":500,\"title\":\"Internal Server Error\"}",
			jsonFile:        "../api/v1/testdata/build.json",
		},
		{
			name:            "queued",
			assemblyService: services.NewMockAssemblyService(true),
			expectedCode:    http.StatusOK,
			expectedBody:    "{\"buildID\":\"mock-build\",\"detail\":\"Tag=crypto-tracker:1.0.0\",\"status\":200,\"title\":\"OK\"}",
			jsonFile:        "../api/v1/testdata/build.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HTTPController{
				assemblyService: tt.assemblyService,
				workerPool:      workerpool.New(1),
				contextDir:      ".",
				buildTimeout:    time.Minute,
			}
			router := gin.Default()
			path := "/v1/build"
			router.POST(path, c.Build)
			file, err := os.Open(tt.jsonFile)
			tools.EnsureSetup(t, err == nil)
			req, _ := http.NewRequest("POST", path, file)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			c.Shutdown()
			assert.Assert(t, tt.expectedCode == w.Code, w.Code)
			assert.Assert(t, tt.expectedBody == w.Body.String(), w.Body.String())
		})
	}
}

func TestHTTPController_BuildRunsInBackground(t *testing.T) {
	builder := adapters.NewMockImageBuilder(true)
	assembly := services.NewAssemblyService(domain.DefaultDescriptor(),
		adapters.NewMockManifestReader(adapters.PinnedManifest(), nil),
		builder,
		adapters.NewMockDockerfileRenderer(false),
		repositories.NewMemoryStorage())
	c := NewHTTPController(assembly, services.NewMockVerifyService(true), nil, 1, t.TempDir(), time.Minute)
	router := gin.Default()
	router.POST("/v1/build", c.Build)
	file, err := os.Open("../api/v1/testdata/build.json")
	tools.EnsureSetup(t, err == nil)
	req, _ := http.NewRequest("POST", "/v1/build", file)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusOK == w.Code, w.Code)
	// Stop waits for queued builds
	c.Shutdown()
	assert.DeepEqual(t, []string{domain.BuilderTarget, domain.ProductionTarget}, builder.Targets())
}

func TestHTTPController_GetBuild(t *testing.T) {
	tests := []struct {
		name            string
		assemblyService ports.AssemblyService
		expectedCode    int
		expectedBody    string
	}{
		{
			name:            "unknown build",
			assemblyService: services.NewMockAssemblyService(false),
			expectedCode:    http.StatusNotFound,
			expectedBody:    `{"detail":"ID=abc","status":404,"title":"Not Found"}`,
		},
		{
			name:            "found",
			assemblyService: services.NewMockAssemblyService(true),
			expectedCode:    http.StatusOK,
			expectedBody: `{
				"id": "abc",
				"tag": "",
				"descriptorDigest": "",
				"pinned": false,
				"stage": "launched",
				"status": "succeeded",
				"started": "<<PRESENCE>>",
				"finished": "<<PRESENCE>>"
			}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HTTPController{assemblyService: tt.assemblyService}
			router := gin.Default()
			router.GET("/v1/builds/:id", c.GetBuild)
			req, _ := http.NewRequest("GET", "/v1/builds/abc", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Assert(t, tt.expectedCode == w.Code, w.Code)
			ja := jsonassert.New(t)
			ja.Assertf(w.Body.String(), "%s", tt.expectedBody)
		})
	}
}

func TestHTTPController_ListBuilds(t *testing.T) {
	tests := []struct {
		name            string
		assemblyService ports.AssemblyService
		expectedCode    int
		expectedBody    string
	}{
		{
			name:            "service error",
			assemblyService: services.NewMockAssemblyService(false),
			expectedCode:    http.StatusInternalServerError,
			expectedBody:    `{"status":500,"title":"Internal Server Error"}`,
		},
		{
			name:            "records",
			assemblyService: services.NewMockAssemblyService(true),
			expectedCode:    http.StatusOK,
			expectedBody: `[{
				"id": "mock-build",
				"tag": "",
				"descriptorDigest": "",
				"pinned": false,
				"stage": "launched",
				"status": "succeeded",
				"started": "<<PRESENCE>>",
				"finished": "<<PRESENCE>>"
			}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HTTPController{assemblyService: tt.assemblyService}
			router := gin.Default()
			router.GET("/v1/builds", c.ListBuilds)
			req, _ := http.NewRequest("GET", "/v1/builds", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Assert(t, tt.expectedCode == w.Code, w.Code)
			ja := jsonassert.New(t)
			ja.Assertf(w.Body.String(), "%s", tt.expectedBody)
		})
	}
}

func TestHTTPController_Verify(t *testing.T) {
	tests := []struct {
		name          string
		verifyService ports.VerifyService
		expectedCode  int
		expectedBody  string
		jsonFile      string
	}{
		{
			name:          "invalid request",
			verifyService: services.NewMockVerifyService(true),
			expectedCode:  http.StatusBadRequest,
			expectedBody:  `{"status":400,"title":"Bad Request"}`,
			jsonFile:      "../api/v1/testdata/build.json",
		},
		{
			name:          "compliant",
			verifyService: services.NewMockVerifyService(true),
			expectedCode:  http.StatusOK,
			expectedBody:  `{"reference":"docker.io/library/crypto-tracker:1.0.0","compliant":true,"violations":null,"checked":"<<PRESENCE>>"}`,
			jsonFile:      "../api/v1/testdata/verify.json",
		},
		{
			name:          "short reference is normalized",
			verifyService: services.NewMockVerifyService(true),
			expectedCode:  http.StatusOK,
			expectedBody:  `{"reference":"docker.io/library/crypto-tracker:1.0.0","compliant":true,"violations":null,"checked":"<<PRESENCE>>"}`,
			jsonFile:      "../api/v1/testdata/verify-short.json",
		},
		{
			name:          "build env overrides",
			verifyService: services.NewVerifyService(domain.DefaultDescriptor(), overriddenInspector(t), 0),
			expectedCode:  http.StatusOK,
			expectedBody:  `{"reference":"docker.io/library/crypto-tracker:1.0.0","compliant":true,"violations":null,"checked":"<<PRESENCE>>"}`,
			jsonFile:      "../api/v1/testdata/verify-env.json",
		},
		{
			name:          "build env overrides ignored",
			verifyService: services.NewVerifyService(domain.DefaultDescriptor(), overriddenInspector(t), 0),
			expectedCode:  http.StatusUnprocessableEntity,
			expectedBody:  `{"reference":"docker.io/library/crypto-tracker:1.0.0","compliant":false,"violations":"<<PRESENCE>>","checked":"<<PRESENCE>>"}`,
			jsonFile:      "../api/v1/testdata/verify-short.json",
		},
		{
			name:          "invalid env",
			verifyService: services.NewVerifyService(domain.DefaultDescriptor(), overriddenInspector(t), 0),
			expectedCode:  http.StatusBadRequest,
			expectedBody:  `{"detail":"<<PRESENCE>>","status":400,"title":"Bad Request"}`,
			jsonFile:      "../api/v1/testdata/verify-env-invalid.json",
		},
		{
			name:          "violations",
			verifyService: services.NewMockVerifyService(false),
			expectedCode:  http.StatusUnprocessableEntity,
			expectedBody:  `{"reference":"docker.io/library/crypto-tracker:1.0.0","compliant":false,"violations":[{"rule":"user","detail":"<<PRESENCE>>"}],"checked":"<<PRESENCE>>"}`,
			jsonFile:      "../api/v1/testdata/verify.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HTTPController{verifyService: tt.verifyService}
			router := gin.Default()
			path := "/v1/verify"
			router.POST(path, c.Verify)
			file, err := os.Open(tt.jsonFile)
			tools.EnsureSetup(t, err == nil)
			req, _ := http.NewRequest("POST", path, file)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Assert(t, tt.expectedCode == w.Code, w.Code)
			ja := jsonassert.New(t)
			ja.Assertf(w.Body.String(), "%s", tt.expectedBody)
		})
	}
}

// overriddenInspector knows one image built with APP_PORT=9000
func overriddenInspector(t *testing.T) ports.ImageInspector {
	d, err := domain.DefaultDescriptor().WithOverrides(map[string]string{domain.EnvAppPort: "9000"})
	tools.EnsureSetup(t, err == nil)
	ref := "docker.io/library/crypto-tracker:1.0.0"
	return adapters.NewMockImageInspector(map[string]domain.ImageInspection{
		ref: adapters.CompliantInspection(ref, d),
	})
}

func TestHTTPController_Dockerfile(t *testing.T) {
	c := HTTPController{assemblyService: services.NewMockAssemblyService(true), contextDir: "."}
	router := gin.Default()
	router.GET("/v1/dockerfile", c.Dockerfile)
	req, _ := http.NewRequest("GET", "/v1/dockerfile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusOK == w.Code, w.Code)
	assert.Equal(t, "FROM scratch\n", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))

	c = HTTPController{assemblyService: services.NewMockAssemblyService(false), contextDir: "."}
	router = gin.Default()
	router.GET("/v1/dockerfile", c.Dockerfile)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusInternalServerError == w.Code, w.Code)
}

func TestHTTPController_Probe(t *testing.T) {
	c := HTTPController{}
	router := gin.Default()
	router.GET("/v1/probe", c.Probe)
	req, _ := http.NewRequest("GET", "/v1/probe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusNotFound == w.Code, w.Code)
	assert.Equal(t, `{"detail":"no probe target configured","status":404,"title":"Not Found"}`, w.Body.String())

	probe := domain.DefaultHealthProbe()
	probe.StartPeriod = 0
	probe.Retries = 1
	watchdog := services.NewWatchdog(probe, adapters.NewMockHealthChecker(false))
	c = HTTPController{probeService: watchdog}
	router = gin.Default()
	router.GET("/v1/probe", c.Probe)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusOK == w.Code, w.Code)
	ja := jsonassert.New(t)
	ja.Assertf(w.Body.String(), `{"status":"starting","failingStreak":0,"checks":0,"lastCheck":"<<PRESENCE>>"}`)

	_ = watchdog.CheckOnce(req.Context())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Assert(t, http.StatusServiceUnavailable == w.Code, w.Code)
}
