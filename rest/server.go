package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/flow"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port             int
	metadataService  metadata.Service
	executionService *flow.Service
}

func NewServer(httpPort int, metadataService metadata.Service, executionService *flow.Service) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService:  metadataService,
		executionService: executionService,
		Port:             httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/templates", s.HandleCreateTemplate).Methods(http.MethodPost)
	router.HandleFunc("/templates", s.HandleListTemplates).Methods(http.MethodGet)
	router.HandleFunc("/templates/validate", s.HandleValidateTemplate).Methods(http.MethodPost)
	router.HandleFunc("/templates/{id}", s.HandleGetTemplate).Methods(http.MethodGet)
	router.HandleFunc("/templates/{id}", s.HandleDeleteTemplate).Methods(http.MethodDelete)

	router.HandleFunc("/executions", s.HandleLaunch).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/jobs", s.HandleGetJobs).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/pause", s.HandlePause).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}/resume", s.HandleResume).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}/stop", s.HandleStop).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}/stream", s.HandleStream).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI, zap.String("method", r.Method))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithFailure maps engine errors to status codes.
func respondWithFailure(w http.ResponseWriter, err error) {
	var notFound persistence.NotFoundError
	var invalid model.InvalidTransitionError
	var validation metadata.ValidationError
	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{"error": "workflow validation failed", "errors": validation.Errors})
	case errors.Is(err, flow.ErrLauncherFull):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
