package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.WorkflowTemplate
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	saved, res, err := s.metadataService.SaveTemplate(tpl)
	if err != nil {
		logger.Error("error saving template", zap.String("templateId", tpl.Id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]any{
		"id":       saved.Id,
		"version":  saved.Version,
		"warnings": res.Warnings,
	})
}

func (s *Server) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tpl, err := s.metadataService.GetTemplate(id)
	if err != nil {
		logger.Info("template does not exist", zap.String("templateId", id))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tpl)
}

func (s *Server) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.metadataService.ListTemplates()
	if err != nil {
		logger.Error("error listing templates", zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, templates)
}

func (s *Server) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteTemplate(id); err != nil {
		logger.Error("error deleting template", zap.String("templateId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondOK(w, map[string]any{"deleted": true})
}

// HandleValidateTemplate reports errors and warnings without saving.
func (s *Server) HandleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.WorkflowTemplate
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid template: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, s.metadataService.Validate(&tpl))
}
