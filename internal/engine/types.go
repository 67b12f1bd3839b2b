package engine

// ImageRef locates one produced image on the engine host.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the recorded output of one workflow node.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// JobStatus is the engine's view of a submitted job.
type JobStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// JobSnapshot is one history entry for a submitted job. Outputs appear per
// node id once the corresponding node has executed.
type JobSnapshot struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  JobStatus             `json:"status"`
}

// Failed reports whether the engine recorded the job as errored.
func (s *JobSnapshot) Failed() bool {
	return s != nil && s.Status.StatusStr == "error"
}

type submitRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id,omitempty"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type freeRequest struct {
	UnloadModels bool `json:"unload_models"`
	FreeMemory   bool `json:"free_memory"`
}

type folderRequest struct {
	Folder string `json:"folder"`
}

type generateRequest struct {
	Folder string `json:"folder"`
	Prompt any    `json:"prompt"`
}
