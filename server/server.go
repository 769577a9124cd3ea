package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saralytics/saralytics/agent/contract"
	"github.com/saralytics/saralytics/agent/datasource"
	"github.com/saralytics/saralytics/agent/orchestrator"
)

type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`
}

// Server exposes the chat stream and the dashboard chart endpoints.
type Server struct {
	echoServer *echo.Echo
	orch       *orchestrator.Orchestrator
	source     datasource.SalesSource
	modelPing  func(ctx context.Context) error
	addr       string
}

// Option configures optional server behavior.
type Option func(*Server)

// WithModelPing adds a model-gateway reachability check to the health
// endpoint.
func WithModelPing(ping func(ctx context.Context) error) Option {
	return func(s *Server) { s.modelPing = ping }
}

func New(cfg Config, orch *orchestrator.Orchestrator, source datasource.SalesSource, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if source == nil {
		return nil, errors.New("sales source is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echoServer: e,
		orch:       orch,
		source:     source,
		addr:       cfg.Addr,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.POST("/api/agent_chat", s.handleAgentChat)
	e.GET("/api/sales_over_time", s.handleSalesOverTime)
	e.GET("/api/sales_by_item", s.handleSalesByItem)
	e.GET("/api/quantity_by_size", s.handleQuantityBySize)
	e.GET("/healthz", s.handleHealth)

	return s, nil
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.echoServer.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

// Handler exposes the routed handler for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// handleAgentChat streams the answer as chunked plain text, one fragment per
// flush. Errors that occur before the first byte map to an HTTP status;
// errors after that are appended to the body, since the status is already
// committed.
func (s *Server) handleAgentChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	stream, err := s.orch.HandleTurn(ctx, req.SessionID, req.Question)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer stream.Close()

	resp := c.Response()
	flusher, _ := resp.Writer.(http.Flusher)
	started := false

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !started {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			log.Error().Err(err).Msg("chat stream read failed")
			break
		}

		switch frag.Kind {
		case contract.FragmentText:
			if !started {
				resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
				resp.WriteHeader(http.StatusOK)
				started = true
			}
			if _, err := resp.Write([]byte(frag.Text)); err != nil {
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		case contract.FragmentDone:
			if !started {
				resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
				resp.WriteHeader(http.StatusOK)
			}
			return nil
		case contract.FragmentError:
			if !started {
				return echo.NewHTTPError(statusForErrKind(frag.ErrKind), frag.Text)
			}
			resp.Write([]byte("\n" + frag.Text))
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}
	}
	return nil
}

func statusForErrKind(kind string) int {
	switch kind {
	case "routing_unavailable", "source_unavailable", "reasoning_model_unavailable":
		return http.StatusServiceUnavailable
	case "validation":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type chartResponse struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

func (s *Server) handleSalesOverTime(c echo.Context) error {
	rows, err := s.source.MonthlyRevenue(c.Request().Context())
	if err != nil {
		return chartError(err)
	}

	out := chartResponse{Labels: make([]string, 0, len(rows)), Data: make([]float64, 0, len(rows))}
	for _, r := range rows {
		out.Labels = append(out.Labels, r.Month)
		out.Data = append(out.Data, r.Revenue)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSalesByItem(c echo.Context) error {
	months := intQuery(c, "months", 12)
	limit := intQuery(c, "limit", 15)
	since := time.Now().UTC().AddDate(0, -months, 0)

	rows, err := s.source.TopItemsByRevenue(c.Request().Context(), since, limit)
	if err != nil {
		return chartError(err)
	}

	out := chartResponse{Labels: make([]string, 0, len(rows)), Data: make([]float64, 0, len(rows))}
	for _, r := range rows {
		out.Labels = append(out.Labels, r.ItemName)
		out.Data = append(out.Data, r.Revenue)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleQuantityBySize(c echo.Context) error {
	limit := intQuery(c, "limit", 15)

	rows, err := s.source.QuantityBySize(c.Request().Context(), limit)
	if err != nil {
		return chartError(err)
	}

	out := chartResponse{Labels: make([]string, 0, len(rows)), Data: make([]float64, 0, len(rows))}
	for _, r := range rows {
		out.Labels = append(out.Labels, r.ItemSize)
		out.Data = append(out.Data, float64(r.Units))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "model_gateway": "skipped"}
	healthy := true

	if err := s.source.Ping(ctx); err != nil {
		status["database"] = err.Error()
		healthy = false
	}
	if s.modelPing != nil {
		status["model_gateway"] = "ok"
		if err := s.modelPing(ctx); err != nil {
			status["model_gateway"] = err.Error()
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func chartError(err error) error {
	log.Error().Err(err).Msg("chart query failed")
	return echo.NewHTTPError(http.StatusServiceUnavailable, "sales database unavailable")
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
