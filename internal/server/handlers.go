package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/milechy/commerce-faq-tasks-sub001/internal/auth"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/reranker"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/retrieval"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/router"
	"github.com/milechy/commerce-faq-tasks-sub001/internal/service"
)

// TurnRunner runs one dialog turn.
type TurnRunner interface {
	Turn(ctx context.Context, req service.TurnRequest) (*service.TurnResult, error)
}

// Searcher runs hybrid retrieval.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string) retrieval.Result
}

// RerankService reorders candidates and manages the precision model.
type RerankService interface {
	Rerank(ctx context.Context, query string, hits []retrieval.Hit, topK int) reranker.Result
	Warmup(ctx context.Context) reranker.WarmupResult
	Status() reranker.Status
}

// TierRouter picks a model tier.
type TierRouter interface {
	Route(rc router.RouteContext) router.Decision
}

// API bundles the pipeline stages exposed over HTTP.
type API struct {
	Dialog   TurnRunner
	Search   Searcher
	Reranker RerankService
	Router   TierRouter
}

type searchRequest struct {
	Query    string `json:"query" validate:"required"`
	TenantID string `json:"tenantId,omitempty"`
	TopK     int    `json:"topK,omitempty" validate:"gte=0,lte=50"`
}

type searchResponse struct {
	Retrieval retrieval.Result `json:"retrieval"`
	Rerank    reranker.Result  `json:"rerank"`
}

type routeRequest struct {
	ContextTokens     int               `json:"contextTokens" validate:"gte=0"`
	Recall            *float64          `json:"recall,omitempty" validate:"omitempty,gte=0,lte=1"`
	Complexity        router.Complexity `json:"complexity,omitempty" validate:"omitempty,oneof=low medium high"`
	SafetyTag         string            `json:"safetyTag,omitempty"`
	ConversationDepth int               `json:"conversationDepth" validate:"gte=0"`
	Used120bCount     int               `json:"used120bCount" validate:"gte=0"`
	Max120bPerRequest int               `json:"max120bPerRequest" validate:"gte=0"`
	IntentType        string            `json:"intentType,omitempty"`
	RequiresSafeMode  bool              `json:"requiresSafeMode,omitempty"`
}

const defaultSearchTopK = 5

func (s *HTTPServer) registerRoutes() error {
	routes := []struct {
		method  string
		path    string
		handler func(http.ResponseWriter, *http.Request, map[string]string)
	}{
		{http.MethodPost, "/v1/dialog/turn", s.handleTurn},
		{http.MethodPost, "/v1/search", s.handleSearch},
		{http.MethodPost, "/v1/rerank/warmup", s.handleWarmup},
		{http.MethodGet, "/v1/rerank/status", s.handleRerankStatus},
		{http.MethodPost, "/v1/route", s.handleRoute},
	}
	for _, rt := range routes {
		if err := s.gwMux.HandlePath(rt.method, rt.path, rt.handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *HTTPServer) handleTurn(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.api.Dialog == nil {
		s.writeError(w, r, status.Error(codes.Unimplemented, "dialog is not configured"))
		return
	}
	var req service.TurnRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.TenantID = tenantFor(r.Context(), req.TenantID)

	result, err := s.api.Dialog.Turn(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrMissingQuery) {
			s.writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
			return
		}
		s.logger.Error("dialog turn failed", "session_id", req.SessionID, "error", err)
		s.writeError(w, r, status.Error(codes.Internal, "dialog turn failed"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.api.Search == nil || s.api.Reranker == nil {
		s.writeError(w, r, status.Error(codes.Unimplemented, "search is not configured"))
		return
	}
	var req searchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}

	ctx := r.Context()
	found := s.api.Search.Search(ctx, req.Query, tenantFor(ctx, req.TenantID))
	ranked := s.api.Reranker.Rerank(ctx, req.Query, found.Items, topK)
	s.writeJSON(w, r, http.StatusOK, searchResponse{Retrieval: found, Rerank: ranked})
}

func (s *HTTPServer) handleWarmup(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.api.Reranker == nil {
		s.writeError(w, r, status.Error(codes.Unimplemented, "reranker is not configured"))
		return
	}
	res := s.api.Reranker.Warmup(r.Context())
	code := http.StatusOK
	if !res.OK {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, res)
}

func (s *HTTPServer) handleRerankStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.api.Reranker == nil {
		s.writeError(w, r, status.Error(codes.Unimplemented, "reranker is not configured"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.api.Reranker.Status())
}

func (s *HTTPServer) handleRoute(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.api.Router == nil {
		s.writeError(w, r, status.Error(codes.Unimplemented, "router is not configured"))
		return
	}
	var req routeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	decision := s.api.Router.Route(router.RouteContext{
		ContextTokens:     req.ContextTokens,
		Recall:            req.Recall,
		Complexity:        req.Complexity,
		SafetyTag:         req.SafetyTag,
		ConversationDepth: req.ConversationDepth,
		Used120bCount:     req.Used120bCount,
		Max120bPerRequest: req.Max120bPerRequest,
		IntentType:        req.IntentType,
		RequiresSafeMode:  req.RequiresSafeMode,
	})
	s.writeJSON(w, r, http.StatusOK, decision)
}

// tenantFor prefers the authenticated tenant over one named in the body.
func tenantFor(ctx context.Context, requested string) string {
	if info, ok := auth.TenantFromContext(ctx); ok {
		return info.ID.String()
	}
	return requested
}
