package dispatch

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
)

// WorkerHostHeader carries the worker's own address when it reaches the
// coordinator through the reverse tunnel
const WorkerHostHeader = "X-Worker-Host"

// maxBodySize bounds /result and /log request bodies
const maxBodySize = 32 << 20

func (s *Server) setupRoutes() {
	s.router.GET("/job", s.getJob)
	s.router.POST("/result", s.postResult)
	s.router.POST("/log", s.postLog)
	s.router.GET("/health", gin.WrapF(metrics.HealthHandler()))
	s.router.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	s.router.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

type jobResponse struct {
	Job json.RawMessage `json:"job"`
}

// getJob handles GET /job
func (s *Server) getJob(c *gin.Context) {
	address := workerAddress(c.Request)
	job, err := s.jobs.GetJob(withWorker(c.Request.Context(), address))
	if err != nil {
		s.logger.Error().Err(err).Msg("Job source failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if IsNull(job) {
		c.JSON(http.StatusOK, jobResponse{Job: json.RawMessage(null)})
		c.Writer.Flush()
		s.triggerShutdown(address)
		return
	}

	if !json.Valid(job) {
		s.logger.Error().Int("bytes", len(job)).Msg("Job source returned invalid JSON")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job is not valid JSON"})
		return
	}

	metrics.JobsDispatched.Inc()
	c.JSON(http.StatusOK, jobResponse{Job: job})
}

// postResult handles POST /result
func (s *Server) postResult(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metrics.ResultsReceived.Inc()

	address := workerAddress(c.Request)
	reply, err := s.results.ReceiveResult(withWorker(c.Request.Context(), address), json.RawMessage(body))
	if err != nil {
		s.logger.Error().Err(err).Str("worker", address).Msg("Result sink failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reply == nil {
		reply = "ok"
	}
	c.JSON(http.StatusOK, gin.H{"result": reply})
}

// postLog handles POST /log
func (s *Server) postLog(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger := log.Logger.With().Str("worker", workerAddress(c.Request)).Logger()
	n := log.EmitLines(logger, string(body))
	metrics.LogRecords.Add(float64(n))
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

// workerAddress identifies the calling worker. Requests arriving through the
// reverse tunnel come from loopback, so the worker's self-reported header is
// used there; otherwise the TCP peer address is authoritative.
func workerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		if header := r.Header.Get(WorkerHostHeader); header != "" {
			return header
		}
	}
	return host
}
