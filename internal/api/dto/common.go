package dto

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// LimitParams bounds list endpoints.
type LimitParams struct {
	Limit int
}

func (p *LimitParams) Normalize() {
	if p.Limit < 1 {
		p.Limit = 50
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
}
