package types

type LogEntryView struct {
	Datetime string `json:"datetime"`
	User     string `json:"user"`
	Method   string `json:"method"`
	Category string `json:"category"`
}

type LogResponse struct {
	Logs []LogEntryView `json:"logs"`
}
