// Package tools routes function calls from the live model to the fixed set
// of side-effecting actions and builds the results sent back to it.
package tools

// Call is a function call requested by the model.
type Call struct {
	// ID correlates the result with the in-flight turn.
	ID string `json:"id"`

	// Name is one of the declared function names.
	Name string `json:"name"`

	// Args maps argument names to JSON-decoded values.
	Args map[string]any `json:"args,omitempty"`
}

// Result is the outcome of a Call. Exactly one is sent per Call.
type Result struct {
	ID     string
	Name   string
	Output string

	// OK is false for soft failures. It is not sent to the model; the
	// failure is described in Output.
	OK bool
}

// Response is the payload sent back to the model for a Result.
type Response struct {
	Result string `json:"result"`
}

// WireResult is the JSON form of a Result: {id, name, response: {result}}.
type WireResult struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Response Response `json:"response"`
}

// Wire returns the JSON form of r.
func (r Result) Wire() WireResult {
	return WireResult{
		ID:       r.ID,
		Name:     r.Name,
		Response: Response{Result: r.Output},
	}
}

// ResponseMap returns the response payload as a generic map.
func (r Result) ResponseMap() map[string]any {
	return map[string]any{"result": r.Output}
}
