package model

// JobListOptions groups parameters for listing held jobs with optional filters.
type JobListOptions struct {
	Type         *JobType   // Optional filter by type
	Status       *JobStatus // Optional filter by status
	PartitionKey *string    // Optional filter by partition key
	Limit        int        // Pagination limit; 0 means no limit
	Offset       int        // Pagination offset
}

// Matches reports whether j passes every filter set on o.
func (o JobListOptions) Matches(j *Job) bool {
	if o.Type != nil && j.Type != *o.Type {
		return false
	}
	if o.Status != nil && j.Status != *o.Status {
		return false
	}
	if o.PartitionKey != nil && j.PartitionKey != *o.PartitionKey {
		return false
	}
	return true
}

// JobHistoryQuery filters archived terminal jobs.
type JobHistoryQuery struct {
	Type         *JobType
	Status       *JobStatus
	PartitionKey *string
	Limit        int
}
