package certificate

import (
	"certkeeper/internal/domain/certificate"
)

type listInput struct {
	Type   string `query:"type" example:"EICR" doc:"Only certificates of this type"`
	Status string `query:"status" example:"draft" doc:"Only certificates in this status"`
}

type listOutput struct {
	Body listResponse
}

type listResponse struct {
	Certificates []*certificate.Record `json:"certificates"`
	Total        int                   `json:"total"`
}

type createInput struct {
	Body createRequest
}

type createRequest struct {
	Type certificate.Type    `json:"type"`
	Data certificate.Payload `json:"data,omitempty" doc:"Form payload; the type template is used when empty"`
}

type findInput struct {
	ID string `path:"id" example:"6f1c2a8e-5d0b-4b8f-9a57-0d4f3c1e2b7a" doc:"Certificate ID"`
}

type putInput struct {
	ID   string `path:"id" doc:"Certificate ID"`
	Body certificate.Record
}

type statusInput struct {
	ID   string `path:"id" doc:"Certificate ID"`
	Body statusRequest
}

type statusRequest struct {
	Status certificate.Status `json:"status"`
}

type output struct {
	Body *certificate.Record
}

type putOutput struct {
	Status int
	Body   *certificate.Record
}
