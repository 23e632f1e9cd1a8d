package cdp

// NavigatePage navigates the session's page to url. The result shape is
// NavigateResult.
func NavigatePage(url string) Command {
	return Command{
		Method: "Page.navigate",
		Params: struct {
			URL string `json:"url"`
		}{url},
	}
}

// NavigateResult is the result shape of Page.navigate.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}
