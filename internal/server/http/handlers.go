package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	"github.com/aidd/paper-tracker/internal/observability"
	"github.com/aidd/paper-tracker/internal/query"
)

const maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

// listParams are the query parameters shared by the list and stats
// endpoints. Page fields are ignored by stats.
type listParams struct {
	Sources         []string `json:"source"`
	Page            int      `json:"page" validate:"min=1"`
	PageSize        int      `json:"page_size" validate:"min=1,max=100"`
	Categories      []string `json:"categories" validate:"dive,required"`
	RelevanceStatus []string `json:"relevance_status" validate:"dive,oneof=relevant irrelevant untagged"`
	DateStart       string   `json:"date_start" validate:"omitempty,datetime=2006-01-02"`
	DateEnd         string   `json:"date_end" validate:"omitempty,datetime=2006-01-02"`
	SearchQuery     string   `json:"search_query" validate:"max=1000"`
	SearchScope     string   `json:"search_scope" validate:"oneof=title abstract authors all"`
}

// updateRequest is the JSON body of POST /papers/update.
type updateRequest struct {
	Sources    []string `json:"sources" validate:"dive,required"`
	Categories []string `json:"categories" validate:"dive,required"`
	StartDate  string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// relevanceRequest is the JSON body of PUT /papers/{id}/relevance.
// A null or absent is_relevant clears the tag.
type relevanceRequest struct {
	IsRelevant *int `json:"is_relevant" validate:"omitempty,oneof=0 1"`
}

// listPapers handles GET /api/v1/papers.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	params, filter, err := s.parseListParams(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, err := s.deps.Query.List(r.Context(), filter, params.Page, params.PageSize)
	if err != nil {
		s.logFailure(r, err, "failed to list papers")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// paperStats handles GET /api/v1/papers/stats.
func (s *Server) paperStats(w http.ResponseWriter, r *http.Request) {
	_, filter, err := s.parseListParams(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stats, err := s.deps.Query.Stats(r.Context(), filter)
	if err != nil {
		s.logFailure(r, err, "failed to compute stats")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// updatePapers handles POST /api/v1/papers/update. It polls the requested
// sources synchronously and reports per-source counts.
func (s *Server) updatePapers(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	pollReq, err := toPollRequest(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.deps.Poller.Poll(r.Context(), pollReq)
	if err != nil {
		s.logFailure(r, err, "update failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pollResultToResponse(result))
}

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, source, err := paperTarget(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	paper, err := s.deps.Papers.Get(r.Context(), id, source)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}

// setRelevance handles PUT /api/v1/papers/{paperID}/relevance.
func (s *Server) setRelevance(w http.ResponseWriter, r *http.Request) {
	id, source, err := paperTarget(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req relevanceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	var relevant *bool
	if req.IsRelevant != nil {
		relevant = domain.BoolPtr(*req.IsRelevant == 1)
	}

	paper, err := s.deps.Papers.SetRelevance(r.Context(), id, source, relevant)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logFailure(r, err, "failed to update relevance")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Paper relevance updated successfully",
		"paper":   domainPaperToResponse(paper),
	})
}

// deletePaper handles DELETE /api/v1/papers/{paperID}.
func (s *Server) deletePaper(w http.ResponseWriter, r *http.Request) {
	id, source, err := paperTarget(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	n, err := s.deps.Papers.Delete(r.Context(), id, source)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := domain.PapersDeletedPayload{Scope: "paper", PaperID: id, Deleted: n}
	if source != nil {
		payload.Source = string(*source)
	}
	s.notifyDeleted(r, payload)
	writeJSON(w, http.StatusOK, deleteResponse{Scope: payload.Scope, Deleted: n})
}

// deletePapers handles DELETE /api/v1/papers. Exactly one scope is required:
// source, all=true, or a date_start/date_end range (optionally narrowed by
// source).
func (s *Server) deletePapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	sources, err := parseSources(q["source"])
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var (
		payload domain.PapersDeletedPayload
		n       int64
	)
	switch {
	case q.Get("date_start") != "" || q.Get("date_end") != "":
		var from, to *time.Time
		if from, err = parseDayParam("date_start", q.Get("date_start")); err != nil {
			break
		}
		if to, err = parseDayParam("date_end", q.Get("date_end")); err != nil {
			break
		}
		if from == nil || to == nil {
			err = domain.NewValidationError("date_range", "date_start and date_end are both required")
			break
		}
		n, err = s.deps.Papers.DeleteByDateRange(ctx, *from, *to, sources)
		payload = domain.PapersDeletedPayload{Scope: "date_range", Source: joinSources(sources)}

	case q.Get("all") == "true":
		n, err = s.deps.Papers.DeleteAll(ctx)
		payload = domain.PapersDeletedPayload{Scope: "all"}

	case len(sources) == 1:
		n, err = s.deps.Papers.DeleteBySource(ctx, sources[0])
		payload = domain.PapersDeletedPayload{Scope: "source", Source: string(sources[0])}

	default:
		err = domain.NewValidationError("scope", "one of source, all=true or date_start/date_end is required")
	}
	if err != nil {
		s.logFailure(r, err, "delete failed")
		writeDomainError(w, err)
		return
	}

	payload.Deleted = n
	s.notifyDeleted(r, payload)
	writeJSON(w, http.StatusOK, deleteResponse{Scope: payload.Scope, Deleted: n})
}

// listSources handles GET /api/v1/sources.
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Papers.StatsBySource(r.Context())
	if err != nil {
		s.logFailure(r, err, "failed to count papers per source")
		writeDomainError(w, err)
		return
	}

	resp := listSourcesResponse{Sources: make([]sourceResponse, 0, len(domain.AllSourceTypes()))}
	for _, st := range domain.AllSourceTypes() {
		enabled := false
		if f := s.deps.Sources.Get(st); f != nil {
			enabled = f.IsEnabled()
		}
		resp.Sources = append(resp.Sources, sourceResponse{
			ID:                string(st),
			Name:              st.DisplayName(),
			Enabled:           enabled,
			Categories:        s.deps.Taxonomy.Categories(st),
			DefaultCategories: s.deps.Taxonomy.Defaults(st),
			PaperCount:        counts[st],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// listCategories handles GET /api/v1/categories.
func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	all := []string{}
	bySource := make(map[string][]string)
	for _, table := range s.deps.Taxonomy.Sources() {
		names := s.deps.Taxonomy.CategoryNames(table.Source)
		bySource[string(table.Source)] = names
		all = append(all, names...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": all,
		"by_source":  bySource,
	})
}

// parseListParams reads and validates the list/stats query parameters.
// Unknown source names are logged and ignored; when none of the named
// sources is known the filter matches nothing.
func (s *Server) parseListParams(r *http.Request) (listParams, query.Filter, error) {
	q := r.URL.Query()
	params := listParams{
		Sources:         q["source"],
		Page:            1,
		PageSize:        query.DefaultPageSize,
		Categories:      q["categories"],
		RelevanceStatus: q["relevance_status"],
		DateStart:       q.Get("date_start"),
		DateEnd:         q.Get("date_end"),
		SearchQuery:     q.Get("search_query"),
		SearchScope:     q.Get("search_scope"),
	}
	if params.SearchScope == "" {
		params.SearchScope = string(domain.SearchScopeTitle)
	}

	var err error
	if params.Page, err = intParam(q, "page", params.Page); err != nil {
		return params, query.Filter{}, err
	}
	if params.PageSize, err = intParam(q, "page_size", params.PageSize); err != nil {
		return params, query.Filter{}, err
	}
	if err := s.validate.Struct(params); err != nil {
		return params, query.Filter{}, validationError(err)
	}

	filter := query.Filter{
		Categories:  params.Categories,
		SearchQuery: strings.TrimSpace(params.SearchQuery),
		SearchScope: domain.SearchScope(params.SearchScope),
	}
	var unknown []string
	filter.Sources, unknown = splitSources(params.Sources)
	if len(unknown) > 0 {
		logger := observability.LoggerFromContext(r.Context(), s.logger)
		logger.Warn().Strs("sources", unknown).Msg("ignoring unsupported source filter")
		filter.NoSources = len(filter.Sources) == 0
	}
	for _, status := range params.RelevanceStatus {
		filter.Relevance = append(filter.Relevance, domain.RelevanceStatus(status))
	}
	if filter.DateStart, err = parseDayParam("date_start", params.DateStart); err != nil {
		return params, query.Filter{}, err
	}
	if filter.DateEnd, err = parseDayParam("date_end", params.DateEnd); err != nil {
		return params, query.Filter{}, err
	}
	return params, filter, nil
}

// decodeBody reads a JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return domain.NewValidationError("body", "failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return domain.NewValidationError("body", "invalid JSON request body")
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *Server) notifyDeleted(r *http.Request, payload domain.PapersDeletedPayload) {
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Info().
		Str("scope", payload.Scope).
		Str("source", payload.Source).
		Str("paper_id", payload.PaperID).
		Int64("deleted", payload.Deleted).
		Msg("papers deleted")
	if s.deps.Events != nil && payload.Deleted > 0 {
		s.deps.Events.PapersDeleted(r.Context(), payload)
	}
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	if errors.Is(err, domain.ErrInvalidInput) {
		return
	}
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Error().Err(err).Msg(msg)
}

func toPollRequest(req updateRequest) (pollReq ingest.PollRequest, err error) {
	pollReq.Sources = req.Sources
	pollReq.Categories = req.Categories
	if pollReq.DateFrom, err = parseDayParam("start_date", req.StartDate); err != nil {
		return pollReq, err
	}
	if pollReq.DateTo, err = parseDayParam("end_date", req.EndDate); err != nil {
		return pollReq, err
	}
	return pollReq, nil
}

// paperTarget extracts the paper id path parameter and the optional source
// query parameter.
func paperTarget(r *http.Request) (string, *domain.SourceType, error) {
	id := strings.TrimSpace(chi.URLParam(r, "paperID"))
	if id == "" {
		return "", nil, domain.NewValidationError("id", "paper id is required")
	}
	raw := r.URL.Query().Get("source")
	if raw == "" {
		return id, nil, nil
	}
	st, err := domain.ParseSourceType(raw)
	if err != nil {
		return "", nil, domain.NewValidationError("source", fmt.Sprintf("unsupported source %q", raw))
	}
	return id, &st, nil
}

func parseSources(raw []string) ([]domain.SourceType, error) {
	var out []domain.SourceType
	for _, name := range raw {
		st, err := domain.ParseSourceType(name)
		if err != nil {
			return nil, domain.NewValidationError("source", fmt.Sprintf("unsupported source %q", name))
		}
		out = append(out, st)
	}
	return out, nil
}

// splitSources separates the known source names from the rest.
func splitSources(raw []string) (known []domain.SourceType, unknown []string) {
	for _, name := range raw {
		st, err := domain.ParseSourceType(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		known = append(known, st)
	}
	return known, unknown
}

func joinSources(sources []domain.SourceType) string {
	names := make([]string, len(sources))
	for i, st := range sources {
		names[i] = string(st)
	}
	return strings.Join(names, ",")
}

func parseDayParam(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := dateparse.ParseDay(raw)
	if err != nil {
		return nil, domain.NewValidationError(field, field+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, name+" must be an integer")
	}
	return v, nil
}

// validationError turns the first validator failure into a domain
// validation error named after the JSON field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("request", err.Error())
	}
	fe := verrs[0]
	msg := fe.Field() + " "
	switch fe.Tag() {
	case "min":
		msg += "must be at least " + fe.Param()
	case "max":
		msg += "must be at most " + fe.Param()
	case "oneof":
		msg += "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		msg += "must be a date in YYYY-MM-DD format"
	case "required":
		msg += "must not be empty"
	default:
		msg += "is invalid"
	}
	return domain.NewValidationError(fe.Field(), msg)
}

// jsonFieldName makes validator report fields by their JSON name.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Validation messages are returned verbatim; other failures
// keep their description so the client sees one descriptive message.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ve *domain.ValidationError
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
