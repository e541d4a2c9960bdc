package gateway

// FileOutput describes a generated file registered during execution.
type FileOutput struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	Format string `json:"format"`
}

// Result is what a full session run produces. A caller always receives
// a Result, never an error: failures surface as text in Stderr.
type Result struct {
	Stdout string       `json:"stdout"`
	Stderr string       `json:"stderr"`
	Result string       `json:"result"`
	Files  []FileOutput `json:"files"`
}
