package types

type VerifyRequest struct {
	RFIDID string `json:"rfid_id" validate:"required,max=128"`
}

type VerifyResponse struct {
	RFIDID     string `json:"rfid_id"`
	Decision   string `json:"decision"`
	Granted    bool   `json:"granted"`
	Message    string `json:"message"`
	ServerTime string `json:"server_time"`
}
