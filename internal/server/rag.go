package server

import (
	"net/http"

	"github.com/tjfontaine/tenantgate/internal/domain"
	"github.com/tjfontaine/tenantgate/internal/rag"
	"github.com/tjfontaine/tenantgate/internal/tenant"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())

	var req rag.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DocID == "" {
		writeError(w, r, domain.ErrInvalidRequest("Doc id is required"))
		return
	}
	if req.Text == "" {
		writeError(w, r, domain.ErrInvalidRequest("Text is required"))
		return
	}

	AddLogField(r.Context(), "doc", req.DocID)
	result, err := s.pipeline.Ingest(r.Context(), tn, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tn, _ := tenant.FromContext(r.Context())

	var req rag.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Query == "" {
		writeError(w, r, domain.ErrInvalidRequest("Query is required"))
		return
	}

	response, err := s.pipeline.Search(r.Context(), tn, req, GetTraceID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, r, response)
}
