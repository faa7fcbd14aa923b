package dto

type SessionResponse struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
}
