package api

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// InsertRequest is the body of a PUT /fields/{field}/{primaryKey} request.
// Value is JSON-typed: a number decodes as float64, everything else as
// string, matching dynamicFieldCodec's supported value types.
type InsertRequest struct {
	Value interface{} `json:"value"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port        int
	APIKey      string
	DataDir     string
	KeysPerNode int
}
