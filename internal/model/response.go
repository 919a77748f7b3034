package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
