package handler

import (
	"bordereau/internal/bsd/models"
)

// createDocumentRequest carries a new bordereau. Server-controlled fields
// (id, readableId, status, version, signatures) are ignored on input.
type createDocumentRequest struct {
	Draft    bool            `json:"draft"`
	Document models.Document `json:"document"`
}

// signRequest applies one signature to a document.
type signRequest struct {
	Type models.SignatureType `json:"type"`
	// Author is the signatory name written on the bordereau.
	Author string `json:"author"`
	// SecurityCode requests a proxy signature on behalf of the natural signer.
	SecurityCode string `json:"securityCode,omitempty"`
}

type addTransporterRequest struct {
	Transporter models.TransporterSlot `json:"transporter"`
}

type createRevisionRequest struct {
	Content models.RevisionContent `json:"content"`
	Comment string                 `json:"comment"`
}

type approveRevisionRequest struct {
	Accept  bool   `json:"accept"`
	Comment string `json:"comment,omitempty"`
}

type documentListResponse struct {
	Documents []*models.Document `json:"documents"`
}

type revisionListResponse struct {
	Revisions []*models.RevisionRequest `json:"revisions"`
}
