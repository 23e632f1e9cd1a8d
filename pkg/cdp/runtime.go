package cdp

import "encoding/json"

// Evaluate runs a JavaScript expression in the page and returns its value by
// value. The result shape is EvaluateResult.
func Evaluate(expression string) Command {
	return Command{
		Method: "Runtime.evaluate",
		Params: struct {
			Expression    string `json:"expression"`
			ReturnByValue bool   `json:"returnByValue"`
		}{expression, true},
	}
}

// EvaluateResult is the result shape of Runtime.evaluate.
type EvaluateResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value,omitempty"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails,omitempty"`
}
