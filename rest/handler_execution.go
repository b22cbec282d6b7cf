package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"go.uber.org/zap"
)

func (s *Server) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	var req model.LaunchRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid launch request: "+err.Error())
		return
	}
	exec, err := s.executionService.Launch(r.Context(), req)
	if err != nil {
		logger.Error("error launching workflow", zap.String("templateId", req.TemplateId), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, exec)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.executionService.Get(r.Context(), id)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}

func (s *Server) HandleGetJobs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.executionService.Get(r.Context(), id); err != nil {
		respondWithFailure(w, err)
		return
	}
	jobs, err := s.executionService.Jobs(r.Context(), id)
	if err != nil {
		logger.Error("error listing jobs", zap.String("executionId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, jobs)
}

func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.executionService.Pause(r.Context(), id)
	if err != nil {
		logger.Error("error pausing execution", zap.String("executionId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}

// HandleResume accepts an optional body with reviewer data.
func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req model.ResumeRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid resume request: "+err.Error())
		return
	}
	exec, err := s.executionService.Resume(r.Context(), id, req)
	if err != nil {
		logger.Error("error resuming execution", zap.String("executionId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}

func (s *Server) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.executionService.Stop(r.Context(), id)
	if err != nil {
		logger.Error("error stopping execution", zap.String("executionId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}
