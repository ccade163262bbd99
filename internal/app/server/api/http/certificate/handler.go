package certificate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/draftstore"
)

// Store is the part of draftstore.Store the API needs.
type Store interface {
	Add(ctx context.Context, rec *certificate.Record) error
	Update(ctx context.Context, id string, patch draftstore.Patch) (*certificate.Record, error)
	Put(ctx context.Context, rec *certificate.Record) (*certificate.Record, bool, error)
	Get(id string) (*certificate.Record, bool)
	Delete(ctx context.Context, id string) error
	List(f draftstore.Filter) []*certificate.Record
}

type Handler struct {
	store      Store
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(store Store, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		store:      store,
		log:        log.With("component", "certificate_api"),
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.createOp(), h.create)
	huma.Register(api, h.findOp(), h.find)
	huma.Register(api, h.putOp(), h.put)
	huma.Register(api, h.statusOp(), h.transition)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) list(_ context.Context, input *listInput) (*listOutput, error) {
	var f draftstore.Filter
	if input.Type != "" {
		t, err := certificate.ParseType(input.Type)
		if err != nil {
			return nil, toHTTPError(err)
		}
		f.Type = t
	}
	if input.Status != "" {
		s, err := certificate.ParseStatus(input.Status)
		if err != nil {
			return nil, toHTTPError(err)
		}
		f.Status = s
	}

	recs := h.store.List(f)
	return &listOutput{
		Body: listResponse{
			Certificates: recs,
			Total:        len(recs),
		},
	}, nil
}

func (h *Handler) create(ctx context.Context, input *createInput) (*output, error) {
	if err := input.Body.Type.Validate(); err != nil {
		return nil, toHTTPError(err)
	}

	data := input.Body.Data
	if len(data) == 0 {
		var err error
		if data, err = certificate.NewPayload(input.Body.Type); err != nil {
			return nil, toHTTPError(err)
		}
	}

	rec := certificate.NewRecord(input.Body.Type, data, time.Now().UTC())
	if err := h.store.Add(ctx, rec); err != nil {
		return nil, h.fail("create", rec.ID, err)
	}
	h.log.Info("certificate created", "id", rec.ID, "type", rec.CertificateType)

	stored, _ := h.store.Get(rec.ID)
	return &output{Body: stored}, nil
}

func (h *Handler) find(_ context.Context, input *findInput) (*output, error) {
	rec, ok := h.store.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(certificate.ErrNotFound.Error())
	}
	return &output{Body: rec}, nil
}

func (h *Handler) put(ctx context.Context, input *putInput) (*putOutput, error) {
	rec := input.Body
	if rec.ID == "" {
		rec.ID = input.ID
	}
	if rec.ID != input.ID {
		return nil, huma.Error422UnprocessableEntity("body id does not match path id")
	}

	stored, created, err := h.store.Put(ctx, &rec)
	if err != nil {
		return nil, h.fail("put", input.ID, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return &putOutput{Status: status, Body: stored}, nil
}

func (h *Handler) transition(ctx context.Context, input *statusInput) (*output, error) {
	next := input.Body.Status
	rec, err := h.store.Update(ctx, input.ID, draftstore.Patch{Status: &next})
	if err != nil {
		return nil, h.fail("transition", input.ID, err)
	}
	h.log.Info("certificate status changed", "id", rec.ID, "status", rec.Status)
	return &output{Body: rec}, nil
}

func (h *Handler) delete(ctx context.Context, input *findInput) (*struct{}, error) {
	if err := h.store.Delete(ctx, input.ID); err != nil {
		return nil, h.fail("delete", input.ID, err)
	}
	return nil, nil
}

func (h *Handler) fail(op, id string, err error) error {
	herr := toHTTPError(err)
	var se huma.StatusError
	if errors.As(herr, &se) && se.GetStatus() >= http.StatusInternalServerError {
		h.log.Error("certificate operation failed", "op", op, "id", id, "error", err)
	} else {
		h.log.Debug("certificate request rejected", "op", op, "id", id, "error", err)
	}
	return herr
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, certificate.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, certificate.ErrDuplicateID), errors.Is(err, certificate.ErrFinalized):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, certificate.ErrInvalidTransition),
		errors.Is(err, certificate.ErrInvalidType),
		errors.Is(err, certificate.ErrInvalidData):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
