package model

// Outcome is what a handler reports for one execution attempt.
type Outcome struct {
	Success bool
	Result  any
	Error   string
	// Cause optionally carries the underlying error for classification; it is never stored on the job.
	Cause error
}

// Succeed returns a successful outcome carrying an optional result.
func Succeed(result any) Outcome {
	return Outcome{Success: true, Result: result}
}

// Fail returns a failed outcome with the given message.
func Fail(msg string) Outcome {
	return Outcome{Error: msg}
}

// FailErr returns a failed outcome using err's message. A nil err yields an empty message.
func FailErr(err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	return Outcome{Error: err.Error(), Cause: err}
}
