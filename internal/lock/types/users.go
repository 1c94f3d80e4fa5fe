package types

// EmailRequest is the body of the mode switches, create-user and
// remove-rfid-id-from-user.
type EmailRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email"`
}

type AssignRFIDRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email"`
	RFIDID       string `json:"rfid_id" validate:"required,max=128"`
}

type UserView struct {
	EmailAddress string  `json:"email_address"`
	AccessStatus string  `json:"access_status"`
	RFIDID       *string `json:"rfid_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
