package certificate

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "certificates-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/certificates",
		Summary:     "List certificates",
		Description: "Most recently updated first",
		Tags:        []string{"certificates"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID:   "certificates-create",
		Method:        http.MethodPost,
		Path:          "/api/v1/certificates",
		Summary:       "Create a draft certificate",
		Tags:          []string{"certificates"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) findOp() huma.Operation {
	return huma.Operation{
		OperationID: "certificates-find",
		Method:      http.MethodGet,
		Path:        "/api/v1/certificates/{id}",
		Summary:     "Get a certificate",
		Tags:        []string{"certificates"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) putOp() huma.Operation {
	return huma.Operation{
		OperationID: "certificates-put",
		Method:      http.MethodPut,
		Path:        "/api/v1/certificates/{id}",
		Summary:     "Store a complete certificate",
		Description: "Inserts or replaces the record. Type is immutable, status only moves forward " +
			"and data of complete or issued certificates cannot change.",
		Tags:        []string{"certificates"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) statusOp() huma.Operation {
	return huma.Operation{
		OperationID: "certificates-status",
		Method:      http.MethodPost,
		Path:        "/api/v1/certificates/{id}/status",
		Summary:     "Move a certificate through its lifecycle",
		Tags:        []string{"certificates"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID:   "certificates-delete",
		Method:        http.MethodDelete,
		Path:          "/api/v1/certificates/{id}",
		Summary:       "Delete a certificate",
		Tags:          []string{"certificates"},
		DefaultStatus: http.StatusNoContent,
		Middlewares:   h.middleware,
	}
}
