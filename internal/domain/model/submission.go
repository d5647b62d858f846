package model

// StatusID is the Judge0 submission status enumeration.
type StatusID int

const (
	StatusInQueue             StatusID = 1
	StatusProcessing          StatusID = 2
	StatusAccepted            StatusID = 3
	StatusWrongAnswer         StatusID = 4
	StatusTimeLimitExceeded   StatusID = 5
	StatusCompilationError    StatusID = 6
	StatusRuntimeErrorSIGSEGV StatusID = 7
	StatusRuntimeErrorSIGXFSZ StatusID = 8
	StatusRuntimeErrorSIGFPE  StatusID = 9
	StatusRuntimeErrorSIGABRT StatusID = 10
	StatusRuntimeErrorNZEC    StatusID = 11
	StatusRuntimeErrorOther   StatusID = 12
	StatusInternalError       StatusID = 13
	StatusExecFormatError     StatusID = 14
)

// IsPending reports whether the judge is still working on the submission.
// Every other value, including ones this package does not name, is terminal.
func (s StatusID) IsPending() bool {
	return s == StatusInQueue || s == StatusProcessing
}

func (s StatusID) IsAccepted() bool { return s == StatusAccepted }

// IsExecutionError reports a compilation error or a runtime crash: the code never
// produced an answer to compare.
func (s StatusID) IsExecutionError() bool {
	return s >= StatusCompilationError && s <= StatusRuntimeErrorOther
}

type Status struct {
	ID          StatusID `json:"id"`
	Description string   `json:"description"`
}

// Limits are the sandbox resource limits attached to every submission.
type Limits struct {
	CPUTimeLimit        float64
	CPUExtraTime        float64
	WallTimeLimit       float64
	MemoryLimitKB       int
	StackLimitKB        int
	MaxProcessesThreads int
	EnableNetwork       bool
}

func DefaultLimits() Limits {
	return Limits{
		CPUTimeLimit:        5,
		CPUExtraTime:        1,
		WallTimeLimit:       15,
		MemoryLimitKB:       256000,
		StackLimitKB:        64000,
		MaxProcessesThreads: 60,
		EnableNetwork:       false,
	}
}

// Submission is one program run request as sent to Judge0.
type Submission struct {
	SourceCode               string  `json:"source_code"`
	LanguageID               int     `json:"language_id"`
	Stdin                    string  `json:"stdin"`
	ExpectedOutput           string  `json:"expected_output,omitempty"`
	CPUTimeLimit             float64 `json:"cpu_time_limit"`
	CPUExtraTime             float64 `json:"cpu_extra_time"`
	WallTimeLimit            float64 `json:"wall_time_limit"`
	MemoryLimit              int     `json:"memory_limit"`
	StackLimit               int     `json:"stack_limit"`
	MaxProcessesAndOrThreads int     `json:"max_processes_and_or_threads"`
	EnableNetwork            bool    `json:"enable_network"`
	Base64Encoded            bool    `json:"base64_encoded"`
}

// WithDefaults returns a copy of s where every unset limit is taken from l
// and a missing language becomes Python.
func (s Submission) WithDefaults(l Limits) Submission {
	if s.LanguageID <= 0 {
		s.LanguageID = DefaultLanguageID
	}
	if s.CPUTimeLimit <= 0 {
		s.CPUTimeLimit = l.CPUTimeLimit
	}
	if s.CPUExtraTime <= 0 {
		s.CPUExtraTime = l.CPUExtraTime
	}
	if s.WallTimeLimit <= 0 {
		s.WallTimeLimit = l.WallTimeLimit
	}
	if s.MemoryLimit <= 0 {
		s.MemoryLimit = l.MemoryLimitKB
	}
	if s.StackLimit <= 0 {
		s.StackLimit = l.StackLimitKB
	}
	if s.MaxProcessesAndOrThreads <= 0 {
		s.MaxProcessesAndOrThreads = l.MaxProcessesThreads
	}
	if !s.EnableNetwork {
		s.EnableNetwork = l.EnableNetwork
	}
	s.Base64Encoded = false
	return s
}

// SubmissionResult is the judge's view of one submission, as returned by a poll.
type SubmissionResult struct {
	Token         string `json:"token"`
	Status        Status `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message,omitempty"`
	Time          string `json:"time"`
	Memory        int    `json:"memory"`
	LanguageID    int    `json:"language_id,omitempty"`
}

func (r SubmissionResult) IsPending() bool { return r.Status.ID.IsPending() }

func (r SubmissionResult) IsAccepted() bool { return r.Status.ID.IsAccepted() }

// ErrorOutput is stderr, or the compiler output when the program never ran.
func (r SubmissionResult) ErrorOutput() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.CompileOutput
}
