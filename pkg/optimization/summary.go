package optimization

// Summary captures the outcome of fitting one model, flattened for output.
type Summary struct {
	Scope      string             `json:"scope"`
	Model      string             `json:"model"`
	Params     map[string]float64 `json:"params"`
	R2         float64            `json:"r2"`
	RMSE       float64            `json:"rmse"`
	SSE        float64            `json:"sse"`
	MAPE       float64            `json:"mape,omitempty"`
	Loss       float64            `json:"loss"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Best       bool               `json:"best"`
	Applied    bool               `json:"applied"`
	Notes      []string           `json:"notes,omitempty"`
}
