package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/events"
	"github.com/brandlens/perception-orchestrator/internal/orchestrator"
	"github.com/brandlens/perception-orchestrator/internal/report"
	"github.com/brandlens/perception-orchestrator/internal/store"
)

// ResultResponse is one pipeline's summary within an execution
type ResultResponse struct {
	PipelineType string          `json:"pipelineType"`
	Summary      json.RawMessage `json:"summary"`
	CreatedAt    string          `json:"createdAt"`
}

// ExecutionResponse is the API response for a batch execution
type ExecutionResponse struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"projectId"`
	ExecutedAt string           `json:"executedAt"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	Results    []ResultResponse `json:"results"`
}

// ReportResponse is the API response for a report snapshot
type ReportResponse struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"projectId"`
	ExecutionID string           `json:"batchExecutionId"`
	GeneratedAt string           `json:"generatedAt"`
	Results     []ResultResponse `json:"results"`
}

// ProjectRequest is the upsert payload for a project
type ProjectRequest struct {
	Name          string            `json:"name"`
	Brand         string            `json:"brand"`
	Competitors   []string          `json:"competitors"`
	EnabledModels []domain.ModelRef `json:"enabledModels"`
}

// ProjectResponse is the API response for a project
type ProjectResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Brand         string            `json:"brand"`
	Competitors   []string          `json:"competitors"`
	EnabledModels []domain.ModelRef `json:"enabledModels"`
}

// PromptSetResponse is the API response for a prompt set
type PromptSetResponse struct {
	ProjectID   string              `json:"projectId"`
	Version     int                 `json:"version"`
	GeneratedAt string              `json:"generatedAt"`
	Prompts     map[string][]string `json:"prompts"`
}

// StatusResponse is the API response for engine status
type StatusResponse struct {
	InFlight       int            `json:"inFlight"`
	InFlightByType map[string]int `json:"inFlightByType,omitempty"`
	Subscribers    int            `json:"subscribers"`
}

func resultsToResponse(results []domain.BatchResult) []ResultResponse {
	out := make([]ResultResponse, len(results))
	for i, r := range results {
		out[i] = ResultResponse{
			PipelineType: string(r.PipelineType),
			Summary:      json.RawMessage(r.Payload),
			CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func executionToResponse(e *domain.BatchExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:         e.ID,
		ProjectID:  e.ProjectID,
		ExecutedAt: e.ExecutedAt.Format(time.RFC3339),
		Status:     string(e.Status),
		Error:      e.Error,
		Results:    resultsToResponse(e.FinalResults),
	}
}

func reportToResponse(r *domain.Report) ReportResponse {
	return ReportResponse{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ExecutionID: r.BatchExecutionID,
		GeneratedAt: r.GeneratedAt.Format(time.RFC3339),
		Results:     resultsToResponse(r.Results),
	}
}

func projectToResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		Brand:         p.Brand,
		Competitors:   p.Competitors,
		EnabledModels: p.EnabledModels,
	}
}

// errorStatus maps engine and store errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, orchestrator.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrUnknownPipeline):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrPromptSetMissing),
		errors.Is(err, report.ErrExecutionNotCompleted),
		errors.Is(err, store.ErrTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		Subscribers: s.bus.SubscriberCount(events.TopicAll),
	}
	if s.gate != nil {
		status.InFlight = s.gate.InFlight()
		status.InFlightByType = make(map[string]int, len(domain.AllPipelineTypes))
		for _, pt := range domain.AllPipelineTypes {
			status.InFlightByType[string(pt)] = s.gate.InFlightFor(pt)
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		out[i] = projectToResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Brand == "" {
		writeError(w, http.StatusBadRequest, "brand is required")
		return
	}

	project := &domain.Project{
		ID:            chi.URLParam(r, "projectID"),
		Name:          req.Name,
		Brand:         req.Brand,
		Competitors:   req.Competitors,
		EnabledModels: req.EnabledModels,
	}
	if err := s.store.UpsertProject(project); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(project))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(project))
}

func (s *Server) handleRunFullBatch(w http.ResponseWriter, r *http.Request) {
	exec, err := s.orch.RunFullBatch(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		if exec != nil {
			// The failed execution is still returned so the caller can
			// inspect it
			writeJSON(w, errorStatus(err), executionToResponse(exec))
			return
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	t := domain.PipelineType(chi.URLParam(r, "pipelineType"))
	exec, err := s.orch.RunPipeline(r.Context(), chi.URLParam(r, "projectID"), t)
	if err != nil {
		if exec != nil {
			writeJSON(w, errorStatus(err), executionToResponse(exec))
			return
		}
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.orch.ListExecutions(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	out := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		out[i] = executionToResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetExecution is the bounded-poll fallback for clients that lost
// their event stream
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.orch.GetExecution(chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executionToResponse(exec))
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.orch.GenerateReportFromBatch(chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, reportToResponse(rep))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.GetReport(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reportToResponse(rep))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]ReportResponse, len(reports))
	for i, rep := range reports {
		out[i] = reportToResponse(rep)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPromptSet(w http.ResponseWriter, r *http.Request) {
	set, err := s.store.GetPromptSet(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, promptSetToResponse(set))
}

func (s *Server) handleRegeneratePromptSet(w http.ResponseWriter, r *http.Request) {
	set, err := s.orch.RegeneratePromptSet(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, promptSetToResponse(set))
}

func promptSetToResponse(set *domain.PromptSet) PromptSetResponse {
	prompts := make(map[string][]string, len(set.Prompts))
	for pt, list := range set.Prompts {
		prompts[string(pt)] = list
	}
	return PromptSetResponse{
		ProjectID:   set.ProjectID,
		Version:     set.Version,
		GeneratedAt: set.GeneratedAt.Format(time.RFC3339),
		Prompts:     prompts,
	}
}
