// Package handler exposes the bordereau lifecycle over HTTP. It stays thin:
// decode, resolve the actor, delegate to the services, encode.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bordereau/internal/bsd/authz"
	"bordereau/internal/bsd/models"
	"bordereau/internal/bsd/revision"
	"bordereau/internal/bsd/service"
	"bordereau/internal/platform/middleware"
	"bordereau/internal/transport/http/shared"
	id "bordereau/pkg/domain"
	dErrors "bordereau/pkg/domain-errors"
)

type Handler struct {
	documents *service.Service
	revisions *revision.Service
	validator *middleware.Validator
	logger    *slog.Logger
}

func New(documents *service.Service, revisions *revision.Service, validator *middleware.Validator, logger *slog.Logger) *Handler {
	return &Handler{
		documents: documents,
		revisions: revisions,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts the bordereau routes behind the auth middleware.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth(h.validator, h.logger))

	router.Post("/bsds", h.handleCreate)
	router.Get("/bsds", h.handleList)
	router.Get("/bsds/{id}", h.handleGet)
	router.Get("/bsds/readable/{readableId}", h.handleGetByReadableID)
	router.Post("/bsds/{id}/publish", h.handlePublish)
	router.Post("/bsds/{id}/sign", h.handleSign)
	router.Post("/bsds/{id}/transporters", h.handleAddTransporter)
	router.Delete("/bsds/{id}/transporters/{number}", h.handleDeleteTransporter)

	router.Post("/bsds/{id}/revisions", h.handleCreateRevision)
	router.Get("/bsds/{id}/revisions", h.handleListRevisions)
	router.Post("/revisions/{revisionId}/approve", h.handleApproveRevision)
	router.Post("/revisions/{revisionId}/cancel", h.handleCancelRevision)

	r.Mount("/", router)
}

// actorFrom rebuilds the domain actor from the authenticated identity. SIRETs
// were validated at token issuance; a malformed one is dropped, not fatal.
func (h *Handler) actorFrom(r *http.Request) authz.Actor {
	identity := middleware.GetIdentity(r.Context())
	actor := authz.Actor{Name: identity.Name}
	for _, raw := range identity.Sirets {
		siret, err := id.ParseSiret(raw)
		if err != nil {
			h.logger.WarnContext(r.Context(), "dropping malformed siret from token", "siret", raw)
			continue
		}
		actor.CompanySirets = append(actor.CompanySirets, siret)
	}
	return actor
}

func documentID(r *http.Request) (id.DocumentID, error) {
	return id.ParseDocumentID(chi.URLParam(r, "id"))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le corps de la requête est invalide"))
		return
	}
	doc := req.Document
	doc.Signatures = nil
	doc.Version = 0
	for i := range doc.Transporters {
		doc.Transporters[i].Signature = nil
		doc.Transporters[i].Number = i + 1
	}

	created, err := h.documents.Create(r.Context(), h.actorFrom(r), &doc, req.Draft)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.ListForActor(r.Context(), h.actorFrom(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, documentListResponse{Documents: docs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.documents.Get(r.Context(), h.actorFrom(r), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleGetByReadableID(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.GetByReadableID(r.Context(), h.actorFrom(r), chi.URLParam(r, "readableId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.documents.Publish(r.Context(), h.actorFrom(r), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le corps de la requête est invalide"))
		return
	}
	actor := h.actorFrom(r)
	doc, err := h.documents.Sign(r.Context(), actor, service.SignatureRequest{
		DocumentID:   docID,
		Type:         req.Type,
		Author:       signatureAuthor(req.Author, actor),
		SecurityCode: req.SecurityCode,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

// signatureAuthor defaults the written signatory name to the authenticated
// person when the request leaves it blank.
func signatureAuthor(author string, actor authz.Actor) string {
	if author != "" {
		return author
	}
	return actor.Name
}

func (h *Handler) handleAddTransporter(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req addTransporterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le corps de la requête est invalide"))
		return
	}
	doc, err := h.documents.AddTransporter(r.Context(), h.actorFrom(r), docID, req.Transporter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDeleteTransporter(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 || number > models.MaxTransporters {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le numéro de transporteur est invalide"))
		return
	}
	doc, err := h.documents.DeleteTransporter(r.Context(), h.actorFrom(r), docID, number)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleCreateRevision(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le corps de la requête est invalide"))
		return
	}
	created, err := h.revisions.Create(r.Context(), h.actorFrom(r), docID, req.Content, req.Comment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	docID, err := documentID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Participation is checked by loading the document through the service.
	if _, err := h.documents.Get(r.Context(), h.actorFrom(r), docID); err != nil {
		shared.WriteError(w, err)
		return
	}
	revisions, err := h.revisions.ListByDocument(r.Context(), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, revisionListResponse{Revisions: revisions})
}

func (h *Handler) handleApproveRevision(w http.ResponseWriter, r *http.Request) {
	revID, err := id.ParseRevisionID(chi.URLParam(r, "revisionId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req approveRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Le corps de la requête est invalide"))
		return
	}
	rev, err := h.revisions.Approve(r.Context(), h.actorFrom(r), revID, req.Accept, req.Comment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rev)
}

func (h *Handler) handleCancelRevision(w http.ResponseWriter, r *http.Request) {
	revID, err := id.ParseRevisionID(chi.URLParam(r, "revisionId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rev, err := h.revisions.Cancel(r.Context(), h.actorFrom(r), revID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rev)
}
