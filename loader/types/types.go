package types

// ProgressEvent is one step of a folder indexing run. The set of
// implementations is closed: only the variants below satisfy it.
//
// A run yields exactly one Discovery first, one FileDone or FileError per
// discovered file in discovery order, optional EmbeddingStatus events, and
// exactly one terminal Done or PipelineError last.
type ProgressEvent interface {
	// Kind is the wire discriminator of the event.
	Kind() string
	progressEvent()
}

type Discovery struct {
	TotalFiles int
	Folder     string
}

type FileDone struct {
	File       string
	Path       string
	ChunkCount int
	Current    int
	Total      int
	Percent    int
}

type FileError struct {
	File    string
	Path    string
	Message string
	Current int
	Total   int
}

type EmbeddingStatus struct {
	Status string
	Count  int
}

type Done struct {
	Processed  int
	ErrorCount int
	Errors     []FileError
}

type PipelineError struct {
	Message string
}

func (Discovery) Kind() string       { return "discovery" }
func (FileDone) Kind() string        { return "file_done" }
func (FileError) Kind() string       { return "file_error" }
func (EmbeddingStatus) Kind() string { return "embedding" }
func (Done) Kind() string            { return "done" }
func (PipelineError) Kind() string   { return "error" }

func (Discovery) progressEvent()       {}
func (FileDone) progressEvent()        {}
func (FileError) progressEvent()       {}
func (EmbeddingStatus) progressEvent() {}
func (Done) progressEvent()            {}
func (PipelineError) progressEvent()   {}

// IsTerminal reports whether ev ends a run.
func IsTerminal(ev ProgressEvent) bool {
	switch ev.(type) {
	case Done, PipelineError:
		return true
	}
	return false
}
