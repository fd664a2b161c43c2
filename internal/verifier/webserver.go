package verifier

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/10gen/migration-auditor/internal/verifier/webserver"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// DefaultServerPort is the report API’s default port.
const DefaultServerPort = 27030

// WebServer serves read-only run reports over HTTP.
type WebServer struct {
	port   int
	store  runlog.Store
	logger *logger.Logger
}

// NewWebServer creates a WebServer object
func NewWebServer(port int, store runlog.Store, logger *logger.Logger) *WebServer {
	return &WebServer{
		port:   port,
		store:  store,
		logger: logger,
	}
}

// A wrapper around gin.ResponseWriter with its own buffer.
// This lets us capture the response body and log it separately.
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write stores the provided bytes before calling (gin.ResponseWriter).Write.
func (rbw responseBodyWriter) Write(b []byte) (int, error) {
	rbw.body.Write(b)
	return rbw.ResponseWriter.Write(b)
}

// RequestAndResponseLogger is the middleware for logging the request and response.
func (server *WebServer) RequestAndResponseLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()

		// A UUID to correlate each request with a response in the logs.
		traceID := uuid.New().String()

		server.logger.Info().Str("uri", c.Request.RequestURI).
			Str("method", c.Request.Method).
			Str("clientIP", c.ClientIP()).
			Str("traceID", traceID).
			Msg("received request")

		// Add the UUID to the header.
		c.Header("Trace-Id", traceID)

		// Capture the response body and log its size below.
		rbw := &responseBodyWriter{ResponseWriter: c.Writer, body: bytes.NewBufferString("")}
		c.Writer = rbw

		c.Next()

		server.logger.Info().Int("status", c.Writer.Status()).
			Int("bodyBytes", rbw.body.Len()).
			Str("traceID", traceID).
			Str("latency", time.Since(t).String()).
			Msg("sent response")
	}
}

func (server *WebServer) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(server.RequestAndResponseLogger(), gin.Recovery())

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/runs/:id", server.runEndpoint)
			v1.GET("/runs/:id/log", server.logEndpoint)
			v1.GET("/runs/:id/skipped", server.fixedFilterEndpoint(runlog.LogFilter{Skipped: mo.Some(true)}))
			v1.GET("/runs/:id/mismatches", server.fixedFilterEndpoint(runlog.LogFilter{Matched: mo.Some(false)}))
		}
	}

	router.HandleMethodNotAllowed = true
	return router
}

// Run serves requests until the context ends. This is a blocking call.
func (server *WebServer) Run(ctx context.Context) error {
	addrStr := fmt.Sprintf("0.0.0.0:%d", server.port)
	server.logger.Info().
		Str("address", addrStr).
		Msg("Starting web server.")

	listener, err := net.Listen("tcp", addrStr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind to %s", addrStr)
	}

	boundPort := listener.Addr().(*net.TCPAddr).Port
	server.logger.Info().
		Int("port", boundPort).
		Msg("Web server started.")

	srv := &http.Server{
		Handler: server.setupRouter(),
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		// Serve always returns a non-nil error.
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return errors.Wrap(err, "web server failed")
	})

	eg.Go(func() error {
		<-egCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			server.logger.Error().Err(err).Msg("Web server forced to shutdown")
		}

		return nil
	})

	return eg.Wait()
}

func (server *WebServer) runEndpoint(c *gin.Context) {
	runID := runlog.RunID(c.Param("id"))

	run, err := server.store.FindRun(c.Request.Context(), runID)
	if err != nil {
		server.errorResponse(c, err)
		return
	}

	if !run.IsPresent() {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("run %s not found", runID)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":      run.MustGet(),
		"complete": run.MustGet().IsComplete(),
	})
}

// logEndpoint returns a run’s log entries. The `skipped`, `matched`, and
// `ns` query parameters filter them.
func (server *WebServer) logEndpoint(c *gin.Context) {
	var filter runlog.LogFilter

	for param, dest := range map[string]*mo.Option[bool]{
		"skipped": &filter.Skipped,
		"matched": &filter.Matched,
	} {
		raw, has := c.GetQuery(param)
		if !has {
			continue
		}

		val, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %#q: %v", param, err)})
			return
		}

		*dest = mo.Some(val)
	}

	if ns, has := c.GetQuery("ns"); has {
		filter.Namespace = mo.Some(ns)
	}

	server.respondWithEntries(c, filter)
}

func (server *WebServer) fixedFilterEndpoint(filter runlog.LogFilter) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.respondWithEntries(c, filter)
	}
}

func (server *WebServer) respondWithEntries(c *gin.Context, filter runlog.LogFilter) {
	runID := runlog.RunID(c.Param("id"))

	entries, err := server.store.FindLogEntries(c.Request.Context(), runID, filter)
	if err != nil {
		server.errorResponse(c, err)
		return
	}

	if entries == nil {
		entries = []runlog.LogEntry{}
	}

	c.Render(http.StatusOK, webserver.ExtJSON{Data: bson.D{
		{"runId", runID},
		{"entries", entries},
	}})
}

func (server *WebServer) errorResponse(c *gin.Context, err error) {
	server.logger.Error().Err(err).Msg("Failed to read the logging database.")

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
