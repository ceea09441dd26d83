package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/monitord/internal/config"
	"github.com/dokzlo13/monitord/internal/display"
	"github.com/dokzlo13/monitord/internal/ledger"
	"github.com/dokzlo13/monitord/internal/schedule"
	"github.com/dokzlo13/monitord/internal/scheduler"
	"github.com/dokzlo13/monitord/internal/vcp"
)

// ControlService serves the local HTTP control API.
type ControlService struct {
	cfg       *config.Config
	scheduler *SchedulerService
	displays  *DisplayService
	ledger    *ledger.Ledger
	limiter   *rate.Limiter
	server    *http.Server
}

// NewControlService creates a new ControlService. The ledger is optional.
func NewControlService(cfg *config.Config, sched *SchedulerService, displays *DisplayService, l *ledger.Ledger) *ControlService {
	return &ControlService{
		cfg:       cfg,
		scheduler: sched,
		displays:  displays,
		ledger:    l,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Control.ApplyRateLimit), 1),
	}
}

// Start begins the control server if enabled.
func (s *ControlService) Start(ctx context.Context) {
	if !s.cfg.Control.IsEnabled() {
		return
	}

	go s.run(ctx)
}

func (s *ControlService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Control.Host, s.cfg.Control.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(log.Logger, s.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting control server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Control server error")
	}
}

// Handler builds the API router.
func (s *ControlService) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/schedule", s.handleSchedule).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/service/{action:start|stop|restart}", s.handleService).Methods(http.MethodPost)
	r.HandleFunc("/apply", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc("/displays", s.handleDisplays).Methods(http.MethodGet)
	r.HandleFunc("/displays/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/displays/{display}/codes/{code}", s.handleUpdate).Methods(http.MethodPut)

	return r
}

func (s *ControlService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type resultView struct {
	BatchID  string    `json:"batch_id"`
	At       time.Time `json:"at"`
	Time     string    `json:"time"`
	Source   string    `json:"source"`
	Applied  bool      `json:"applied"`
	Error    string    `json:"error,omitempty"`
	Commands []string  `json:"commands"`
}

func newResultView(res scheduler.Result) *resultView {
	v := &resultView{
		BatchID:  res.Batch.ID,
		At:       res.Batch.At,
		Time:     schedule.ReadableTime(res.Batch.Hour),
		Source:   res.Source,
		Applied:  res.Applied,
		Commands: make([]string, 0, len(res.Batch.Commands)),
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	for _, c := range res.Batch.Commands {
		v.Commands = append(v.Commands, fmt.Sprintf("%s %s=%d", c.Display.LongID(), c.Code, c.Value))
	}
	return v
}

type statusView struct {
	Running  bool        `json:"running"`
	Period   string      `json:"period"`
	Displays int         `json:"displays"`
	Last     *resultView `json:"last,omitempty"`

	// LastCompleted comes from the ledger while this process has not
	// applied anything yet.
	LastCompleted *ledger.Entry `json:"last_completed,omitempty"`
}

func (s *ControlService) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.scheduler.Scheduler.Status()
	v := statusView{
		Running:  st.Running,
		Period:   st.Period.String(),
		Displays: s.displays.Registry.Len(),
	}
	if st.Last != nil {
		v.Last = newResultView(*st.Last)
	} else if s.ledger != nil {
		last, err := s.ledger.LastCompleted()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read last apply from ledger")
		}
		v.LastCompleted = last
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *ControlService) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sched := s.scheduler.Scheduler
	at := time.Now()
	if clock := r.URL.Query().Get("at"); clock != "" {
		hour, err := schedule.ParseClock(clock)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		at = schedule.OnDay(at.In(sched.Location()), hour)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sched.FormatSchedule(at) + "\n"))
}

func (s *ControlService) handleHistory(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, errors.New("ledger is disabled"))
		return
	}
	entries, err := s.ledger.Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *ControlService) handleService(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var ok bool
	switch action {
	case "start":
		ok = s.scheduler.StartLoop()
	case "stop":
		ok = s.scheduler.StopLoop()
	case "restart":
		ok = s.scheduler.RestartLoop()
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"action":  action,
		"ok":      ok,
		"running": s.scheduler.Scheduler.Running(),
	})
}

func (s *ControlService) handleApply(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("apply rate limit exceeded"))
		return
	}

	res := s.scheduler.ApplyNow(r.Context())
	status := http.StatusOK
	if res.Err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, newResultView(res))
}

func (s *ControlService) handleDisplays(w http.ResponseWriter, _ *http.Request) {
	displays := s.displays.Registry.Displays()
	if displays == nil {
		displays = []*display.Display{}
	}
	writeJSON(w, http.StatusOK, displays)
}

func (s *ControlService) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.displays.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"displays": n})
}

func (s *ControlService) handleUpdate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var upd ScheduleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	d, err := s.displays.Update(vars["display"], vars["code"], upd)
	switch {
	case errors.Is(err, display.ErrUnknownDisplay), errors.Is(err, vcp.ErrUnknownCode):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, schedule.ErrHourOutOfRange), errors.Is(err, schedule.ErrDuplicateHour):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
