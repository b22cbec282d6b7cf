package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/flow"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"go.uber.org/zap"
)

// HandleStream drives a pending or resumed execution and writes each
// progress event as a server-sent event. A client disconnect stops the
// delivery but not the run. An execution some other runner is driving is a
// conflict.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.executionService.Get(r.Context(), id)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	if exec.Status.IsTerminal() {
		respondWithError(w, http.StatusConflict, fmt.Sprintf("execution %s is %s", id, exec.Status))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, err := s.executionService.Executor().Stream(r.Context(), id)
	switch {
	case errors.Is(err, flow.ErrRunClaimed):
		respondWithError(w, http.StatusConflict, fmt.Sprintf("execution %s is already running", id))
		return
	case errors.Is(err, flow.ErrHalted):
		respondWithError(w, http.StatusConflict, fmt.Sprintf("execution %s is not runnable", id))
		return
	case err != nil:
		respondWithFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			logger.Debug("stream client gone", zap.String("executionId", id), zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
