package model

type ProcessResponse struct {
	Message      string `json:"message"`
	DownloadPath string `json:"downloadPath"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}
