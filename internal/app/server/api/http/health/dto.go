package health

import "time"

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Status    string    `json:"status" example:"OK" doc:"Overall service status"`
	Storage   string    `json:"storage" enum:"up,none" doc:"Certificate storage reachability"`
	CheckedAt time.Time `json:"checked_at" doc:"When the check ran"`
}
