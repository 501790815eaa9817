package param

import (
	"encoding/json"
	"os"

	"github.com/aceteam-ai/mediaworker-sdk/mcaierr"
)

// Job is an immutable unit of work parsed from an order envelope.
type Job struct {
	JobID      uint64      `json:"job_id"`
	Parameters []Parameter `json:"parameters"`
}

// envelope mirrors the wire shape so we can detect a missing job_id (which
// json.Unmarshal alone cannot distinguish from job_id: 0).
type envelope struct {
	JobID      *uint64     `json:"job_id"`
	Parameters []Parameter `json:"parameters"`
}

// NewJob parses an order envelope. Malformed JSON, a missing job_id, or a
// parameter entry lacking a recognized id/type/value triple all yield a
// mcaierr.KindRuntime error.
func NewJob(message []byte) (*Job, error) {
	if len(message) == 0 {
		return nil, mcaierr.RuntimeError("empty message")
	}

	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, mcaierr.RuntimeError("invalid job message: %v", err)
	}
	if env.JobID == nil {
		return nil, mcaierr.RuntimeError("job message missing job_id")
	}

	return &Job{JobID: *env.JobID, Parameters: env.Parameters}, nil
}

// find returns the first parameter with the given id (first-match wins, per
// the SDK's confirmed lookup semantics), and whether it was found.
func (j *Job) find(id string) (Parameter, bool) {
	for _, p := range j.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}

// GetStringParameter returns the effective value of id if present and of
// kind string; ok is false otherwise.
func (j *Job) GetStringParameter(id string) (value string, ok bool) {
	p, found := j.find(id)
	if !found || !p.hasKind(KindString) {
		return "", false
	}
	raw, has := p.effective()
	if !has {
		return "", false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// GetIntegerParameter returns the effective value of id if present and of
// kind integer; ok is false otherwise.
func (j *Job) GetIntegerParameter(id string) (value int64, ok bool) {
	p, found := j.find(id)
	if !found || !p.hasKind(KindInteger) {
		return 0, false
	}
	raw, has := p.effective()
	if !has {
		return 0, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	return value, true
}

// GetBooleanParameter returns the effective value of id if present and of
// kind boolean; ok is false otherwise.
func (j *Job) GetBooleanParameter(id string) (value bool, ok bool) {
	p, found := j.find(id)
	if !found || !p.hasKind(KindBoolean) {
		return false, false
	}
	raw, has := p.effective()
	if !has {
		return false, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, false
	}
	return value, true
}

// GetArrayOfStringsParameter returns the effective value of id if present
// and of kind array_of_strings; ok is false otherwise.
func (j *Job) GetArrayOfStringsParameter(id string) (value []string, ok bool) {
	p, found := j.find(id)
	if !found || !p.hasKind(KindArrayOfStrings) {
		return nil, false
	}
	raw, has := p.effective()
	if !has {
		return nil, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return value, true
}

// CredentialResolver resolves a credential key to its secret value.
// Satisfied by *credential.Client; kept as an interface here so param does
// not import credential.
type CredentialResolver interface {
	Resolve(key string) (string, error)
}

// GetCredentialParameter returns the effective credential key of id,
// resolved to its secret value via resolver. ok is false if the parameter
// is absent or not of kind credential; err is non-nil if resolution fails.
func (j *Job) GetCredentialParameter(id string, resolver CredentialResolver) (value string, ok bool, err error) {
	p, found := j.find(id)
	if !found || !p.hasKind(KindCredential) {
		return "", false, nil
	}
	raw, has := p.effective()
	if !has {
		return "", false, nil
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", false, nil
	}
	secret, err := resolver.Resolve(key)
	if err != nil {
		return "", true, err
	}
	return secret, true, nil
}

// CheckRequirements verifies that every filesystem path listed in every
// KindRequirements parameter exists. Returns the first missing path as a
// mcaierr.KindRequirements error.
func (j *Job) CheckRequirements() error {
	for _, p := range j.Parameters {
		if !p.hasKind(KindRequirements) {
			continue
		}
		raw, has := p.effective()
		if !has {
			continue
		}
		var req Requirements
		if err := json.Unmarshal(raw, &req); err != nil {
			return mcaierr.RuntimeError("invalid requirements value for %q: %v", p.ID, err)
		}
		for _, path := range req.Paths {
			if _, err := os.Stat(path); err != nil {
				return mcaierr.RequirementsError(path)
			}
		}
	}
	return nil
}
